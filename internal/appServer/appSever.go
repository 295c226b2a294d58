// launching the server, storage, redis cache, kafka producer and purge worker
package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/config"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/kafka"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/processor"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/replicate"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/risk"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/service"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/transport"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/worker"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout(),
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objectStorage := storage.NewFileStorage(cfg.Storage.BasePath, cfg.Storage.PublicBaseURL)
	imgRepo := database.NewImageRepository(objectStorage)

	var generationCache database.GenerationCache
	if cfg.Redis.Enabled {
		redisClient := database.NewRedisClient(&cfg.Redis)
		defer redisClient.Close()
		generationCache = database.NewGenerationCache(redisClient, cfg.Redis.CacheTTL)
	} else {
		logger.Warn("Redis disabled, generation cache is off")
	}

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, []string{cfg.Kafka.OptimizeTopic, cfg.Kafka.EventsTopic}, logger)
	defer kafkaProducer.Close()

	var predictor service.Predictor
	var uploader replicate.Uploader
	replicateClient, err := replicate.NewClient(replicate.Options{
		APIToken:         cfg.Replicate.APIToken,
		BaseURL:          cfg.Replicate.BaseURL,
		PollInterval:     cfg.Replicate.PollInterval,
		PollTimeout:      cfg.Replicate.PollTimeout,
		MaxDownloadBytes: cfg.Generation.MaxDownloadBytes,
		ModelVersions:    cfg.Replicate.ModelVersions,
	}, logger.WithField("component", "replicate"))
	switch {
	case errors.Is(err, entity.ErrMissingAPIKey):
		logger.Warn("Replicate API token not provided, generation disabled")
	case err != nil:
		logger.Fatalf("Failed to initialize Replicate client: %v", err)
	default:
		predictor = replicateClient
		if cfg.Replicate.UploadMode == replicate.UploadModeFiles {
			uploader = replicate.NewFilesUploader(replicateClient, logger)
		} else {
			uploader = replicate.NewStorageUploader(imgRepo, cfg.Storage.InputTTL, logger)
		}
	}

	assessor := risk.NewAssessor()
	optimizer := processor.NewProgressiveOptimizer(logger.WithField("component", "optimizer"))

	imgService := service.NewImageService(imgRepo, kafkaProducer, optimizer, assessor, service.ImageServiceConfig{
		OptimizeTopic: cfg.Kafka.OptimizeTopic,
		InputTTL:      cfg.Storage.InputTTL,
		MaxInputBytes: cfg.Generation.MaxOptimizeBytes,
		DefaultModel:  cfg.Replicate.DefaultModel,
	}, logger)
	genService := service.NewGenerationService(predictor, uploader, imgRepo, generationCache, kafkaProducer, assessor, service.GenerationConfig{
		DefaultModel:  cfg.Replicate.DefaultModel,
		MaxInputBytes: cfg.Generation.MaxInputBytes,
		GeneratedTTL:  cfg.Storage.GeneratedTTL,
		EventsTopic:   cfg.Kafka.EventsTopic,
		Production:    cfg.IsProduction(),
	}, logger.WithField("component", "generation"))

	imgHandler := transport.NewImageHandler(imgService)
	genHandler := transport.NewGenerationHandler(genService, cfg.IsProduction())
	objHandler := transport.NewObjectHandler(objectStorage)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	purgeWorker := worker.NewPurgeWorker(objectStorage, cfg.Storage.PurgeInterval, logger)
	go purgeWorker.Start(ctx)

	srv := new(Server)
	go func() {
		router := transport.InitRoutes(imgHandler, genHandler, objHandler, cfg.RequestTimeout(), logger)
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logger.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Print("App Shutting Down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
