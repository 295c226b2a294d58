package entity

// TargetUsage selects the stage ladder used by the progressive optimizer.
type TargetUsage string

const (
	UsageGeneral TargetUsage = "general"
	UsageI2I     TargetUsage = "i2i"
)

// OptimizationStage is one rung of a stage ladder. Quality is in (0, 1].
type OptimizationStage struct {
	TargetSizeKB int
	MaxWidth     int
	MaxHeight    int
	Quality      float64
}

// ProgressFunc is invoked after every applied stage with a 1-based stage index.
type ProgressFunc func(stageIndex, totalStages int, currentSize string)

type OptimizeOptions struct {
	TargetUsage TargetUsage
	OnProgress  ProgressFunc
}

type OptimizationResult struct {
	OptimizedImage    EncodedImage
	OriginalSize      string
	FinalSize         string
	StagesApplied     int
	IsSmartphoneImage bool
}

type SmartphoneDetails struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Megapixels   float64 `json:"megapixels"`
	AspectRatio  float64 `json:"aspectRatio"`
	SizeBytes    int     `json:"sizeBytes"`
	HEICDetected bool    `json:"heicDetected"`
}

type SmartphoneDetection struct {
	IsSmartphone bool              `json:"isSmartphone"`
	Confidence   int               `json:"confidence"`
	Details      SmartphoneDetails `json:"details"`
}

type OptimizeRequest struct {
	Image       string      `json:"image" binding:"required"`
	TargetUsage TargetUsage `json:"targetUsage" binding:"omitempty,oneof=general i2i"`
}

type OptimizeResponse struct {
	Image             string `json:"image"`
	MimeType          string `json:"mimeType"`
	OriginalSize      string `json:"originalSize"`
	FinalSize         string `json:"finalSize"`
	StagesApplied     int    `json:"stagesApplied"`
	IsSmartphoneImage bool   `json:"isSmartphoneImage"`
}

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// OptimizationJob is the persisted status of an asynchronous optimize request.
type OptimizationJob struct {
	ID          string      `json:"id"`
	Status      JobStatus   `json:"status"`
	TargetUsage TargetUsage `json:"targetUsage"`
	InputKey    string      `json:"inputKey"`
	OutputKey   string      `json:"outputKey,omitempty"`
	OutputURL   string      `json:"outputUrl,omitempty"`
	Stages      int         `json:"stagesApplied"`
	FinalSize   string      `json:"finalSize,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// OptimizationTask is the Kafka payload consumed by the processor.
type OptimizationTask struct {
	JobID       string      `json:"job_id"`
	InputKey    string      `json:"input_key"`
	TargetUsage TargetUsage `json:"target_usage"`
}

type JobResponse struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}
