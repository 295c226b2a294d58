package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/kafka"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/processor"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/risk"
)

type ImageServiceConfig struct {
	OptimizeTopic string
	InputTTL      time.Duration
	MaxInputBytes int64
	DefaultModel  string
}

type imageService struct {
	repo      database.ImageRepository
	producer  kafka.Producer
	optimizer *processor.ProgressiveOptimizer
	assessor  *risk.Assessor
	cfg       ImageServiceConfig
	logger    logrus.FieldLogger
}

func NewImageService(repo database.ImageRepository, producer kafka.Producer, optimizer *processor.ProgressiveOptimizer, assessor *risk.Assessor, cfg ImageServiceConfig, logger logrus.FieldLogger) ImageService {
	return &imageService{
		repo:      repo,
		producer:  producer,
		optimizer: optimizer,
		assessor:  assessor,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *imageService) Optimize(ctx context.Context, req *entity.OptimizeRequest) (*entity.OptimizeResponse, error) {
	src, err := s.parseInput(req.Image)
	if err != nil {
		return nil, err
	}

	result := s.optimizer.Optimize(ctx, src, entity.OptimizeOptions{TargetUsage: req.TargetUsage})

	return &entity.OptimizeResponse{
		Image:             result.OptimizedImage.DataURL(),
		MimeType:          result.OptimizedImage.MIMEType,
		OriginalSize:      result.OriginalSize,
		FinalSize:         result.FinalSize,
		StagesApplied:     result.StagesApplied,
		IsSmartphoneImage: result.IsSmartphoneImage,
	}, nil
}

// SubmitOptimizeJob stores the input, records a processing job and queues it
// for the processor.
func (s *imageService) SubmitOptimizeJob(ctx context.Context, req *entity.OptimizeRequest) (*entity.JobResponse, error) {
	src, err := s.parseInput(req.Image)
	if err != nil {
		return nil, err
	}

	usage := req.TargetUsage
	if usage == "" {
		usage = entity.UsageGeneral
	}

	key, err := s.repo.SaveImage(ctx, database.PrefixOptimizeInput, src, s.cfg.InputTTL)
	if err != nil {
		return nil, err
	}

	job := &entity.OptimizationJob{
		ID:          uuid.NewString(),
		Status:      entity.JobProcessing,
		TargetUsage: usage,
		InputKey:    key,
	}
	if err := s.repo.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	task := entity.OptimizationTask{JobID: job.ID, InputKey: key, TargetUsage: usage}
	if err := s.producer.SendMessage(ctx, s.cfg.OptimizeTopic, job.ID, task); err != nil {
		log := s.logger.WithField("job_id", job.ID)
		job.Status = entity.JobFailed
		job.Error = "failed to queue job"
		if saveErr := s.repo.SaveJob(ctx, job); saveErr != nil {
			log.WithError(saveErr).Warn("Failed to record queueing failure")
		}
		if delErr := s.repo.DeleteImage(ctx, key); delErr != nil {
			log.WithError(delErr).Warn("Failed to delete unqueued input")
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrQueueUnavailable, err)
	}

	s.logger.WithFields(logrus.Fields{"job_id": job.ID, "usage": usage}).Info("Optimization job queued")
	return &entity.JobResponse{ID: job.ID, Status: job.Status}, nil
}

func (s *imageService) GetOptimizeJob(ctx context.Context, id string) (*entity.OptimizationJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrJobNotFound
	}
	return s.repo.FindJob(ctx, id)
}

func (s *imageService) AssessRisk(ctx context.Context, req *entity.RiskRequest) (*entity.RiskAssessment, error) {
	src, err := s.parseInput(req.BaseImage)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}

	assessment := s.assessor.Assess(src, model, req.Options.Parameters())
	return &assessment, nil
}

func (s *imageService) parseInput(encoded string) (entity.EncodedImage, error) {
	img, err := entity.ParseEncodedImage(encoded)
	if err != nil {
		return entity.EncodedImage{}, err
	}
	if s.cfg.MaxInputBytes > 0 && int64(img.Size()) > s.cfg.MaxInputBytes {
		return entity.EncodedImage{}, fmt.Errorf("%w: %d bytes", entity.ErrImageTooLarge, img.Size())
	}
	return img, nil
}
