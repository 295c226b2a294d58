// entry point to the optimization job consumer
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/config"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/processor"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
)

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(new(logrus.JSONFormatter))

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}
	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logger.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := database.NewImageRepository(storage.NewFileStorage(cfg.Storage.BasePath, cfg.Storage.PublicBaseURL))
	imgProcessor := processor.NewImageProcessor(
		repo,
		processor.NewProgressiveOptimizer(logger.WithField("component", "optimizer")),
		cfg.Storage.GeneratedTTL,
		logger,
	)

	processor.StartImageProcessorConsumer(ctx, cfg.Kafka.Brokers, cfg.Kafka.OptimizeTopic, cfg.Kafka.GroupID, cfg.Kafka.Workers, imgProcessor, logger)
}
