package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
)

// PurgeWorker periodically removes stored objects whose expiresAt has passed:
// temporary provider inputs, queued optimize inputs and aged generations.
type PurgeWorker struct {
	storage  storage.ObjectStorage
	interval time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewPurgeWorker(storage storage.ObjectStorage, interval time.Duration, logger logrus.FieldLogger) *PurgeWorker {
	return &PurgeWorker{
		storage:  storage,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

func (w *PurgeWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.WithField("interval", w.interval.String()).Info("Purge worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Purge worker stopped")
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *PurgeWorker) purge(ctx context.Context) int {
	purged, err := w.storage.PurgeExpired(ctx, w.now())
	if err != nil {
		w.logger.WithError(err).Errorf("Purge stopped after %d objects", purged)
		return purged
	}

	if purged > 0 {
		w.logger.Infof("Purged %d expired objects", purged)
	} else {
		w.logger.Debug("No expired objects found")
	}
	return purged
}
