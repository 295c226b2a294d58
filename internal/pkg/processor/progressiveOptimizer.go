package processor

import (
	"bytes"
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/metrics"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/imagesize"
)

const stripThresholdBytes = 1024 * 1024

// Each ladder is ordered from the mildest to the harshest stage.
var (
	GeneralLadder = []entity.OptimizationStage{
		{TargetSizeKB: 1024, MaxWidth: 2048, MaxHeight: 2048, Quality: 0.9},
		{TargetSizeKB: 700, MaxWidth: 1600, MaxHeight: 1600, Quality: 0.85},
		{TargetSizeKB: 500, MaxWidth: 1280, MaxHeight: 1280, Quality: 0.8},
		{TargetSizeKB: 300, MaxWidth: 1024, MaxHeight: 1024, Quality: 0.75},
	}

	// Image-to-image providers run out of GPU memory on far smaller inputs.
	I2ILadder = []entity.OptimizationStage{
		{TargetSizeKB: 300, MaxWidth: 1024, MaxHeight: 1024, Quality: 0.8},
		{TargetSizeKB: 200, MaxWidth: 768, MaxHeight: 768, Quality: 0.7},
		{TargetSizeKB: 150, MaxWidth: 512, MaxHeight: 512, Quality: 0.6},
	}
)

// LadderFor returns the stage ladder for a usage, defaulting to general.
func LadderFor(usage entity.TargetUsage) []entity.OptimizationStage {
	if usage == entity.UsageI2I {
		return I2ILadder
	}
	return GeneralLadder
}

type ProgressiveOptimizer struct {
	transcoder *Transcoder
	detector   *SmartphoneDetector
	stripper   *MetadataStripper
	logger     logrus.FieldLogger
}

func NewProgressiveOptimizer(logger logrus.FieldLogger) *ProgressiveOptimizer {
	return &ProgressiveOptimizer{
		transcoder: NewTranscoder(),
		detector:   NewSmartphoneDetector(logger),
		stripper:   NewMetadataStripper(logger),
		logger:     logger,
	}
}

// Optimize shrinks src stage by stage until it meets a stage's byte target.
// It never returns an error: a failed stage ends the loop with the best image
// obtained so far, and a result larger than the input falls back to the input.
func (o *ProgressiveOptimizer) Optimize(ctx context.Context, src entity.EncodedImage, opts entity.OptimizeOptions) entity.OptimizationResult {
	start := time.Now()
	usage := opts.TargetUsage
	if usage == "" {
		usage = entity.UsageGeneral
	}
	ladder := LadderFor(usage)
	log := o.logger.WithField("usage", usage)

	detection := o.detector.Detect(src)
	log.WithFields(logrus.Fields{
		"smartphone": detection.IsSmartphone,
		"confidence": detection.Confidence,
		"size":       imagesize.FormatHumanSize(src.Size()),
	}).Debug("optimization started")

	current := src
	if detection.IsSmartphone || src.Size() > stripThresholdBytes {
		current = o.stripper.Strip(src)
	}

	applied := 0
	for i, stage := range ladder {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("optimization interrupted")
			break
		}
		if imagesize.KB(current.Size()) <= float64(stage.TargetSizeKB) {
			break
		}

		next, err := o.transcoder.Transcode(current, stage.MaxWidth, stage.MaxHeight, stage.Quality)
		if err != nil {
			log.WithError(err).WithField("stage", i+1).Warn("transcode failed, keeping previous stage output")
			break
		}
		// Already within this stage's bounds: nothing was applied.
		if bytes.Equal(next.Data, current.Data) {
			continue
		}

		current = next
		applied++
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(ladder), imagesize.FormatHumanSize(current.Size()))
		}
	}

	if current.Size() > src.Size() {
		log.Debug("optimized output larger than input, returning input")
		current = src
	}

	metrics.OptimizeStages(string(usage), applied)
	metrics.OptimizeDuration(string(usage), time.Since(start))

	return entity.OptimizationResult{
		OptimizedImage:    current,
		OriginalSize:      imagesize.FormatHumanSize(src.Size()),
		FinalSize:         imagesize.FormatHumanSize(current.Size()),
		StagesApplied:     applied,
		IsSmartphoneImage: detection.IsSmartphone,
	}
}
