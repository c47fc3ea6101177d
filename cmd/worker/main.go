package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mineguard-service/internal/artifacts"
	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/detection"
	"github.com/mineguard-service/internal/infrastructure/rasterapi"
	"github.com/mineguard-service/internal/pkg/logger"
	"github.com/mineguard-service/internal/raster"
	"github.com/mineguard-service/internal/raster/local"
	"github.com/mineguard-service/internal/repository/cache"
	"github.com/mineguard-service/internal/repository/postgres"
	redisRepo "github.com/mineguard-service/internal/repository/redis"
	"github.com/mineguard-service/internal/segmentation"
	"github.com/mineguard-service/internal/usecase"
	"github.com/mineguard-service/internal/worker"
	"github.com/mineguard-service/internal/worker/analysis"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Check if worker is enabled
	if !cfg.Worker.Enabled {
		fmt.Println("Worker is disabled in configuration. Set WORKER_ENABLED=true to enable.")
		os.Exit(0)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting MineGuard Analysis Worker")
	log.Info("Configuration loaded",
		zap.String("consumer_group", cfg.Worker.ConsumerGroup),
		zap.String("raster_backend", cfg.Raster.Backend))

	// 3. Connect to PostgreSQL
	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}()

	// 4. Connect to Redis
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	// 5. Initialize raster source and segmentation model
	var source raster.Source
	if cfg.Raster.Backend == "remote" {
		source = rasterapi.NewClient(&cfg.Raster, log)
	} else {
		source = local.NewDemoSource(time.Now().UTC())
	}

	model, err := segmentation.NewModel(&cfg.Segmentation, log)
	if err != nil {
		log.Fatal("Failed to build segmentation model", zap.Error(err))
	}

	// 6. Initialize repositories
	inspectionRepo := postgres.NewInspectionRepository(db, log)
	cacheRepo := cache.NewCacheRepository(redisClient)
	streamRepo := redisRepo.NewStreamRepository(redisClient.Client(), log)

	// 7. Initialize use case
	analysisUC := usecase.NewAnalysisUseCase(
		detection.NewPipeline(source, &cfg.Detection, log),
		segmentation.NewCrossChecker(model, log),
		source,
		artifacts.NewStore(&cfg.Storage, log),
		inspectionRepo,
		cacheRepo,
		&cfg.Detection,
		log,
	)

	// 8. Initialize workers
	analysisWorker := analysis.NewAnalysisWorker(
		streamRepo,
		analysisUC,
		inspectionRepo,
		cfg.Worker.ConsumerGroup,
		log,
	)

	// 9. Create worker manager and register workers
	workerManager := worker.NewWorkerManager(log)
	workerManager.Register(analysisWorker)

	// 10. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start workers
	if err := workerManager.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Received shutdown signal")

	// Cancel context to stop workers
	cancel()

	// Stop worker manager
	if err := workerManager.Stop(); err != nil {
		log.Error("Error stopping workers", zap.Error(err))
	}

	log.Info("Worker shutdown complete")
}
