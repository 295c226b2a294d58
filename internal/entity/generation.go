package entity

import "time"

const (
	DefaultWidth         = 512
	DefaultHeight        = 512
	DefaultStrength      = 0.7
	DefaultSteps         = 15
	DefaultGuidanceScale = 5.0
	DefaultOutputFormat  = "png"
)

// GenerationOptions is the optional part of a generation request as sent by
// the client. Nil fields take their defaults.
type GenerationOptions struct {
	Width          *int     `json:"width,omitempty" binding:"omitempty,min=256,max=768"`
	Height         *int     `json:"height,omitempty" binding:"omitempty,min=256,max=768"`
	Strength       *float64 `json:"strength,omitempty" binding:"omitempty,min=0,max=0.9"`
	Steps          *int     `json:"steps,omitempty" binding:"omitempty,min=8,max=30"`
	GuidanceScale  *float64 `json:"guidanceScale,omitempty" binding:"omitempty,min=1,max=10"`
	NegativePrompt string   `json:"negativePrompt,omitempty"`
	OutputFormat   string   `json:"outputFormat,omitempty" binding:"omitempty,oneof=jpeg png"`
}

// Parameters resolves the options against the defaults.
func (o *GenerationOptions) Parameters() GenerationParameters {
	p := GenerationParameters{
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		Strength:      DefaultStrength,
		Steps:         DefaultSteps,
		GuidanceScale: DefaultGuidanceScale,
		OutputFormat:  DefaultOutputFormat,
	}
	if o == nil {
		return p
	}
	if o.Width != nil {
		p.Width = *o.Width
	}
	if o.Height != nil {
		p.Height = *o.Height
	}
	if o.Strength != nil {
		p.Strength = *o.Strength
	}
	if o.Steps != nil {
		p.Steps = *o.Steps
	}
	if o.GuidanceScale != nil {
		p.GuidanceScale = *o.GuidanceScale
	}
	if o.OutputFormat != "" {
		p.OutputFormat = o.OutputFormat
	}
	p.NegativePrompt = o.NegativePrompt
	return p
}

// GenerationParameters are the resolved knobs sent to the provider. Steps,
// guidance and resolution only ever go down between retry attempts.
type GenerationParameters struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Strength       float64 `json:"strength"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidanceScale"`
	NegativePrompt string  `json:"negativePrompt,omitempty"`
	OutputFormat   string  `json:"outputFormat"`
}

// GenerationAttemptState lives for one top-level generation call.
type GenerationAttemptState struct {
	RetryCount        int
	LastError         error
	CurrentParameters GenerationParameters
}

type GenerationRequest struct {
	BaseImage string             `json:"baseImage" binding:"required"`
	Prompt    string             `json:"prompt" binding:"required"`
	Model     string             `json:"model,omitempty"`
	Options   *GenerationOptions `json:"options,omitempty"`
}

type Cost struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// GenerationResponse doubles as the cached record shape.
type GenerationResponse struct {
	Image          string `json:"image"`
	GenerationTime int64  `json:"generationTime"`
	Model          string `json:"model"`
	Cost           *Cost  `json:"cost,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	ImageKey       string `json:"imageKey,omitempty"`
}

type CachedGenerationRecord = GenerationResponse

type OOMErrorResponse struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions"`
}

const EventGenerationCompleted = "generation.completed"

// GenerationEvent is published after every completed generation.
type GenerationEvent struct {
	Type           string    `json:"type"`
	Model          string    `json:"model"`
	ImageKey       string    `json:"image_key,omitempty"`
	GenerationTime int64     `json:"generation_time_ms"`
	Attempts       int       `json:"attempts"`
	Cached         bool      `json:"cached"`
	CompletedAt    time.Time `json:"completed_at"`
}
