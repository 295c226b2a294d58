package database

import (
	"context"
	"time"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
)

const (
	PrefixGenerated      = "generated"
	PrefixReplicateInput = "replicate-input"
	PrefixOptimizeInput  = "optimize-input"
	PrefixOptimized      = "optimized"
	PrefixJobs           = "jobs"
)

// ImageRepository persists images and optimization jobs in the object store.
type ImageRepository interface {
	SaveImage(ctx context.Context, prefix string, img entity.EncodedImage, ttl time.Duration) (string, error)
	LoadImage(ctx context.Context, key string) (entity.EncodedImage, error)
	DeleteImage(ctx context.Context, key string) error
	ImageURL(key string) string

	SaveJob(ctx context.Context, job *entity.OptimizationJob) error
	FindJob(ctx context.Context, id string) (*entity.OptimizationJob, error)
}

// GenerationCache stores finished generations keyed by request fingerprint.
type GenerationCache interface {
	Get(ctx context.Context, key string) (*entity.CachedGenerationRecord, bool, error)
	Set(ctx context.Context, key string, record *entity.CachedGenerationRecord) error
}

type objectImageRepository struct {
	storage storage.ObjectStorage
	now     func() time.Time
}
