package replicate

import (
	"fmt"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

// Model describes how one supported model is addressed, fed and billed.
type Model struct {
	ID    string
	Owner string
	Name  string
	// Version pins a community model; official models leave it empty.
	Version string

	PricePerSecond float64
	PricePerImage  float64

	buildInput func(imageURL, prompt string, p entity.GenerationParameters) map[string]any
}

// Input builds the provider input map for one attempt.
func (m Model) Input(imageURL, prompt string, p entity.GenerationParameters) map[string]any {
	return m.buildInput(imageURL, prompt, p)
}

// Cost estimates the charge of a finished prediction.
func (m Model) Cost(pred *Prediction) *entity.Cost {
	amount := m.PricePerImage
	if m.PricePerSecond > 0 && pred != nil {
		amount = m.PricePerSecond * pred.Metrics.PredictTime
	}
	return &entity.Cost{Amount: amount, Currency: "USD"}
}

var models = map[string]Model{
	entity.ModelSDXLImg2Img: {
		ID:             entity.ModelSDXLImg2Img,
		Owner:          "stability-ai",
		Name:           "sdxl",
		Version:        "7762fd07cf82c948538e41f63f77d685e02b063e37e496e96eefd46c929f9bdc",
		PricePerSecond: 0.000725,
		buildInput: func(imageURL, prompt string, p entity.GenerationParameters) map[string]any {
			input := map[string]any{
				"image":               imageURL,
				"prompt":              prompt,
				"prompt_strength":     p.Strength,
				"num_inference_steps": p.Steps,
				"guidance_scale":      p.GuidanceScale,
				"width":               p.Width,
				"height":              p.Height,
				"refine":              "no_refiner",
				"apply_watermark":     false,
			}
			if p.NegativePrompt != "" {
				input["negative_prompt"] = p.NegativePrompt
			}
			return input
		},
	},
	entity.ModelFluxFill: {
		ID:            entity.ModelFluxFill,
		Owner:         "black-forest-labs",
		Name:          "flux-fill-pro",
		PricePerImage: 0.05,
		buildInput: func(imageURL, prompt string, p entity.GenerationParameters) map[string]any {
			return map[string]any{
				"image":         imageURL,
				"prompt":        prompt,
				"steps":         p.Steps,
				"guidance":      p.GuidanceScale,
				"output_format": outputFormat(p.OutputFormat),
			}
		},
	},
	entity.ModelFluxCanny: {
		ID:            entity.ModelFluxCanny,
		Owner:         "black-forest-labs",
		Name:          "flux-canny-pro",
		PricePerImage: 0.05,
		buildInput:    controlInput,
	},
	entity.ModelFluxDepth: {
		ID:            entity.ModelFluxDepth,
		Owner:         "black-forest-labs",
		Name:          "flux-depth-pro",
		PricePerImage: 0.05,
		buildInput:    controlInput,
	},
	entity.ModelFluxVariations: {
		ID:            entity.ModelFluxVariations,
		Owner:         "black-forest-labs",
		Name:          "flux-redux-dev",
		PricePerImage: 0.025,
		buildInput: func(imageURL, _ string, p entity.GenerationParameters) map[string]any {
			return map[string]any{
				"redux_image":         imageURL,
				"num_inference_steps": p.Steps,
				"guidance":            p.GuidanceScale,
				"output_format":       outputFormat(p.OutputFormat),
				"megapixels":          "1",
			}
		},
	},
}

func controlInput(imageURL, prompt string, p entity.GenerationParameters) map[string]any {
	return map[string]any{
		"control_image": imageURL,
		"prompt":        prompt,
		"steps":         p.Steps,
		"guidance":      p.GuidanceScale,
		"output_format": outputFormat(p.OutputFormat),
	}
}

func outputFormat(f string) string {
	if f == "jpeg" {
		return "jpg"
	}
	return f
}

// LookupModel returns the registered model. An override version from
// configuration replaces the built-in pin.
func LookupModel(id string, versions map[string]string) (Model, error) {
	m, ok := models[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", entity.ErrUnknownModel, id)
	}
	if v := versions[id]; v != "" {
		m.Version = v
	}
	return m, nil
}

func IsKnownModel(id string) bool {
	_, ok := models[id]
	return ok
}
