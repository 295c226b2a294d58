package service

import (
	"context"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/replicate"
)

// ImageService covers the optimization side of the API: synchronous and
// queued optimization plus risk scoring of a prospective generation.
type ImageService interface {
	Optimize(ctx context.Context, req *entity.OptimizeRequest) (*entity.OptimizeResponse, error)
	SubmitOptimizeJob(ctx context.Context, req *entity.OptimizeRequest) (*entity.JobResponse, error)
	GetOptimizeJob(ctx context.Context, id string) (*entity.OptimizationJob, error)
	AssessRisk(ctx context.Context, req *entity.RiskRequest) (*entity.RiskAssessment, error)
}

// GenerationService turns an image and a prompt into a generated image.
type GenerationService interface {
	Generate(ctx context.Context, req *entity.GenerationRequest) (*entity.GenerationResponse, error)
}

// Predictor is the slice of the provider client the orchestrator drives.
type Predictor interface {
	Model(id string) (replicate.Model, error)
	CreatePrediction(ctx context.Context, model replicate.Model, input map[string]any) (*replicate.Prediction, error)
	WaitForPrediction(ctx context.Context, pred *replicate.Prediction) (*replicate.Prediction, error)
	Download(ctx context.Context, url string) (entity.EncodedImage, error)
}
