package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

// ImageProcessor runs queued optimization jobs.
type ImageProcessor interface {
	Process(ctx context.Context, task entity.OptimizationTask) error
}

type imageProcessor struct {
	repo      database.ImageRepository
	optimizer *ProgressiveOptimizer
	outputTTL time.Duration
	logger    logrus.FieldLogger
}

func NewImageProcessor(repo database.ImageRepository, optimizer *ProgressiveOptimizer, outputTTL time.Duration, logger logrus.FieldLogger) ImageProcessor {
	return &imageProcessor{repo: repo, optimizer: optimizer, outputTTL: outputTTL, logger: logger}
}

// Process loads the queued input, runs the stage ladder and records the
// outcome on the job. The input object is removed whatever the outcome.
func (p *imageProcessor) Process(ctx context.Context, task entity.OptimizationTask) error {
	log := p.logger.WithField("job_id", task.JobID)
	log.Info("Processing optimization job")

	job, err := p.repo.FindJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("find job %s: %w", task.JobID, err)
	}

	defer func() {
		if err := p.repo.DeleteImage(ctx, task.InputKey); err != nil {
			log.WithError(err).Warn("Failed to delete job input")
		}
	}()

	src, err := p.repo.LoadImage(ctx, task.InputKey)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("load input: %w", err))
	}

	if _, _, err := DecodeConfig(src); err != nil {
		return p.fail(ctx, job, err)
	}

	result := p.optimizer.Optimize(ctx, src, entity.OptimizeOptions{
		TargetUsage: task.TargetUsage,
		OnProgress: func(stage, total int, size string) {
			log.WithFields(logrus.Fields{"stage": stage, "total": total, "size": size}).Debug("Optimization stage applied")
		},
	})

	key, err := p.repo.SaveImage(ctx, database.PrefixOptimized, result.OptimizedImage, p.outputTTL)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("save output: %w", err))
	}

	job.Status = entity.JobCompleted
	job.OutputKey = key
	job.OutputURL = p.repo.ImageURL(key)
	job.Stages = result.StagesApplied
	job.FinalSize = result.FinalSize
	if err := p.repo.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}

	log.WithFields(logrus.Fields{"stages": result.StagesApplied, "final_size": result.FinalSize}).Info("Optimization job completed")
	return nil
}

func (p *imageProcessor) fail(ctx context.Context, job *entity.OptimizationJob, cause error) error {
	job.Status = entity.JobFailed
	job.Error = cause.Error()
	if err := p.repo.SaveJob(ctx, job); err != nil {
		p.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to record job failure")
	}
	return cause
}

// jobPool runs at most size jobs at once. Jobs run detached from the
// consumer's cancellation so a started job always records its outcome.
type jobPool struct {
	processor ImageProcessor
	slots     chan struct{}
	wg        sync.WaitGroup
	logger    logrus.FieldLogger
}

func newJobPool(processor ImageProcessor, size int, logger logrus.FieldLogger) *jobPool {
	return &jobPool{processor: processor, slots: make(chan struct{}, max(size, 1)), logger: logger}
}

// Submit blocks until a slot is free, then starts the job.
func (p *jobPool) Submit(ctx context.Context, task entity.OptimizationTask) {
	p.slots <- struct{}{}
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()

		if err := p.processor.Process(context.WithoutCancel(ctx), task); err != nil {
			p.logger.WithError(err).WithField("job_id", task.JobID).Error("Optimization job failed")
		}
	}()
}

// Wait returns once every submitted job has finished.
func (p *jobPool) Wait() {
	p.wg.Wait()
}

// StartImageProcessorConsumer reads optimization tasks until ctx is done,
// running up to workers jobs concurrently. It returns after in-flight jobs
// finish.
func StartImageProcessorConsumer(ctx context.Context, brokers []string, topic, groupID string, workers int, processor ImageProcessor, logger logrus.FieldLogger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})
	defer reader.Close()

	pool := newJobPool(processor, workers, logger)
	defer pool.Wait()

	logger.WithFields(logrus.Fields{"brokers": brokers, "topic": topic, "workers": workers}).Info("Image processor consumer started")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Image processor consumer stopping, waiting for running jobs")
				return
			}
			logger.WithError(err).Error("Error reading message from Kafka")
			continue
		}

		logger.WithFields(logrus.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Debug("Received optimization task")

		var task entity.OptimizationTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			logger.WithError(err).Error("Failed to parse task")
			continue
		}

		pool.Submit(ctx, task)
	}
}
