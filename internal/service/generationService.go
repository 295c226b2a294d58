package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/metrics"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/kafka"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/replicate"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/retry"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/risk"
)

const (
	uploadRetryDelay = time.Second
	cleanupTimeout   = 10 * time.Second
)

var oomSuggestions = []string{
	"Use a smaller input image (under 1MB or about 1024px on the long side)",
	"Lower the number of inference steps",
	"Lower the guidance scale",
	"Reduce the output resolution to 512x512",
	"Try the flux-variations model, which needs less GPU memory",
}

type GenerationConfig struct {
	DefaultModel  string
	MaxInputBytes int64
	GeneratedTTL  time.Duration
	EventsTopic   string
	// Production disables the single upload retry.
	Production bool
}

type generationService struct {
	predictor Predictor
	uploader  replicate.Uploader
	repo      database.ImageRepository
	cache     database.GenerationCache
	producer  kafka.Producer
	assessor  *risk.Assessor
	oomPolicy retry.OOMPolicy
	cfg       GenerationConfig
	logger    logrus.FieldLogger

	sleep retry.Sleeper
	now   func() time.Time
}

// NewGenerationService wires the orchestrator. predictor may be nil when no
// provider token is configured; cache may be nil when Redis is disabled.
func NewGenerationService(
	predictor Predictor,
	uploader replicate.Uploader,
	repo database.ImageRepository,
	cache database.GenerationCache,
	producer kafka.Producer,
	assessor *risk.Assessor,
	cfg GenerationConfig,
	logger logrus.FieldLogger,
) GenerationService {
	return &generationService{
		predictor: predictor,
		uploader:  uploader,
		repo:      repo,
		cache:     cache,
		producer:  producer,
		assessor:  assessor,
		oomPolicy: retry.NewOOMPolicy(),
		cfg:       cfg,
		logger:    logger,
		sleep:     retry.Sleep,
		now:       time.Now,
	}
}

type attemptResult struct {
	image      entity.EncodedImage
	prediction *replicate.Prediction
}

func (s *generationService) Generate(ctx context.Context, req *entity.GenerationRequest) (*entity.GenerationResponse, error) {
	start := s.now()

	modelID := req.Model
	if modelID == "" {
		modelID = s.cfg.DefaultModel
	}
	log := s.logger.WithField("model", modelID)

	if s.predictor == nil {
		return nil, entity.NewGenerationError(entity.KindNotConfigured, "image generation is not configured", entity.ErrMissingAPIKey)
	}
	model, err := s.predictor.Model(modelID)
	if err != nil {
		return nil, entity.NewGenerationError(entity.KindValidation, "unknown model", err)
	}

	img, err := entity.ParseEncodedImage(req.BaseImage)
	if err != nil {
		return nil, entity.NewGenerationError(entity.KindValidation, "invalid base image", err)
	}
	if s.cfg.MaxInputBytes > 0 && int64(img.Size()) > s.cfg.MaxInputBytes {
		return nil, entity.NewGenerationError(entity.KindValidation, "image too large",
			fmt.Errorf("%w: %d bytes exceeds %d", entity.ErrImageTooLarge, img.Size(), s.cfg.MaxInputBytes))
	}

	params := req.Options.Parameters()
	cacheKey := CacheKey(img, req.Prompt, modelID, params)
	log = log.WithField("cache_key", cacheKey[:12])

	if cached := s.lookupCache(ctx, cacheKey, log); cached != nil {
		metrics.GenerationsTotal(modelID, "cached")
		s.publish(ctx, cached, 0, true)
		return cached, nil
	}

	assessment := s.assessor.Assess(img, modelID, params)
	params = risk.ApplyToParameters(params, assessment)
	log.WithFields(logrus.Fields{
		"risk_level": assessment.RiskLevel,
		"risk_score": assessment.RiskScore,
		"steps":      params.Steps,
		"guidance":   params.GuidanceScale,
	}).Info("Risk assessed")
	for _, w := range assessment.Warnings {
		log.Warn(w)
	}

	state := &entity.GenerationAttemptState{CurrentParameters: params}
	policy := s.oomPolicy
	policy.Sleep = s.sleep
	policy.OnRetry = func(st *entity.GenerationAttemptState) {
		metrics.OOMRetry(modelID)
		log.WithFields(logrus.Fields{
			"attempt":  st.RetryCount + 1,
			"steps":    st.CurrentParameters.Steps,
			"guidance": st.CurrentParameters.GuidanceScale,
			"width":    st.CurrentParameters.Width,
			"height":   st.CurrentParameters.Height,
		}).Warn("CUDA out of memory, retrying with reduced parameters")
	}

	var result attemptResult
	err = policy.Do(ctx, state, func(ctx context.Context, p entity.GenerationParameters) error {
		r, err := s.runOnce(ctx, model, img, req.Prompt, p, log.WithField("attempt", state.RetryCount+1))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		genErr := classify(err)
		metrics.GenerationsTotal(modelID, string(genErr.Kind))
		log.WithError(err).WithField("retries", state.RetryCount).Error("Generation failed")
		return nil, genErr
	}

	elapsed := s.now().Sub(start)
	metrics.GenerationsTotal(modelID, "success")
	metrics.GenerationDuration(modelID, elapsed)

	resp := &entity.GenerationResponse{
		Image:          encodeBase64Chunked(result.image.Data),
		GenerationTime: elapsed.Milliseconds(),
		Model:          modelID,
		Cost:           model.Cost(result.prediction),
	}

	if key, err := s.repo.SaveImage(ctx, database.PrefixGenerated, result.image, s.cfg.GeneratedTTL); err != nil {
		log.WithError(err).Warn("Failed to persist generated image")
	} else {
		resp.ImageKey = key
		resp.ImageURL = s.repo.ImageURL(key)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, resp); err != nil {
			log.WithError(err).Warn("Failed to write generation cache")
		}
	}

	s.publish(ctx, resp, state.RetryCount+1, false)

	log.WithFields(logrus.Fields{
		"generation_time_ms": resp.GenerationTime,
		"retries":            state.RetryCount,
	}).Info("Generation completed")
	return resp, nil
}

// runOnce performs one upload, predict, poll and download pass. The uploaded
// input is removed on every exit path.
func (s *generationService) runOnce(ctx context.Context, model replicate.Model, img entity.EncodedImage, prompt string, params entity.GenerationParameters, log logrus.FieldLogger) (attemptResult, error) {
	log.WithField("stage", "uploading").Debug("Uploading input image")
	input, err := s.upload(ctx, img, log)
	if err != nil {
		return attemptResult{}, entity.NewGenerationError(entity.KindUpload, "failed to upload input image", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		input.Cleanup(cleanupCtx)
	}()

	log.WithField("stage", "predicting").Debug("Creating prediction")
	pred, err := s.predictor.CreatePrediction(ctx, model, model.Input(input.URL, prompt, params))
	if err != nil {
		return attemptResult{}, err
	}

	log.WithFields(logrus.Fields{"stage": "polling", "prediction_id": pred.ID}).Debug("Waiting for prediction")
	pred, err = s.predictor.WaitForPrediction(ctx, pred)
	if err != nil {
		if errors.Is(err, entity.ErrPredictionTimeout) {
			return attemptResult{}, entity.NewGenerationError(entity.KindTimeout, "generation timed out", err)
		}
		return attemptResult{}, err
	}

	url, err := pred.OutputURL()
	if err != nil {
		return attemptResult{}, err
	}

	log.WithFields(logrus.Fields{"stage": "downloading", "prediction_id": pred.ID}).Debug("Downloading output")
	out, err := s.predictor.Download(ctx, url)
	if err != nil {
		return attemptResult{}, entity.NewGenerationError(entity.KindDownload, "failed to download generated image", err)
	}

	return attemptResult{image: out, prediction: pred}, nil
}

// upload retries once after a fixed delay outside production.
func (s *generationService) upload(ctx context.Context, img entity.EncodedImage, log logrus.FieldLogger) (*replicate.UploadedInput, error) {
	attempts := 2
	if s.cfg.Production {
		attempts = 1
	}

	var input *replicate.UploadedInput
	policy := retry.LinearPolicy{
		Attempts:  attempts,
		BaseDelay: uploadRetryDelay,
		Sleep:     s.sleep,
		OnRetry: func(attempt int, err error) {
			log.WithError(err).Warn("Upload failed, retrying once")
		},
	}
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		in, err := s.uploader.Upload(ctx, img)
		if err != nil {
			return err
		}
		input = in
		return nil
	})
	return input, err
}

func (s *generationService) lookupCache(ctx context.Context, key string, log logrus.FieldLogger) *entity.GenerationResponse {
	if s.cache == nil {
		return nil
	}

	record, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to read generation cache")
		return nil
	}
	metrics.CacheLookup(ok)
	if !ok {
		return nil
	}

	log.Info("Generation cache hit")
	return record
}

func (s *generationService) publish(ctx context.Context, resp *entity.GenerationResponse, attempts int, cached bool) {
	if s.producer == nil || s.cfg.EventsTopic == "" {
		return
	}

	event := entity.GenerationEvent{
		Type:           entity.EventGenerationCompleted,
		Model:          resp.Model,
		ImageKey:       resp.ImageKey,
		GenerationTime: resp.GenerationTime,
		Attempts:       attempts,
		Cached:         cached,
		CompletedAt:    s.now().UTC(),
	}
	if err := s.producer.SendMessage(ctx, s.cfg.EventsTopic, resp.Model, event); err != nil {
		if errors.Is(err, kafka.ErrUnavailable) {
			s.logger.Debug("Kafka unavailable, generation event skipped")
			return
		}
		s.logger.WithError(err).Warn("Failed to publish generation event")
	}
}

// classify maps a terminal error onto a GenerationError. OOM errors carry
// mitigation suggestions for the caller.
func classify(err error) *entity.GenerationError {
	if retry.IsOutOfMemory(err) {
		return &entity.GenerationError{
			Kind:        entity.KindOutOfMemory,
			Message:     "the GPU ran out of memory while generating the image",
			Suggestions: oomSuggestions,
			Cause:       err,
		}
	}

	var genErr *entity.GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	if errors.Is(err, entity.ErrPredictionTimeout) {
		return entity.NewGenerationError(entity.KindTimeout, "generation timed out", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return entity.NewGenerationError(entity.KindTimeout, "generation was interrupted", err)
	}
	return entity.NewGenerationError(entity.KindProvider, "image generation failed", err)
}
