package main

// @title MineGuard Detection Service API
// @version 1.0.0
// @description Сервис обнаружения незаконной открытой добычи по спутниковым данным. Сопоставляет оптические и радарные сигнатуры нарушенной поверхности, проверяет их по цифровой модели рельефа, делит добычу на законную и незаконную относительно границ лицензионного участка и подсчитывает площади и объёмы выемки.
// @description
// @description Основные возможности:
// @description - Синхронное обследование участка по загруженным границам (GeoJSON/WKT)
// @description - Асинхронная постановка обследований в очередь через Redis Streams
// @description - История обследований с кешированием
// @description - Перекрёстная проверка находок сегментационной нейросетью
// @description - Артефакты: карта, 3D-модель рельефа, отчёт, маска и оверлей нейросети

// @contact.name API Support
// @contact.email support@mineguard-service.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/mineguard-service/docs"
	"github.com/mineguard-service/internal/artifacts"
	"github.com/mineguard-service/internal/config"
	httpDelivery "github.com/mineguard-service/internal/delivery/http"
	"github.com/mineguard-service/internal/delivery/http/handler"
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
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting MineGuard Detection Service")
	log.Info("Configuration loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("server_addr", cfg.GetServerAddr()),
		zap.String("raster_backend", cfg.Raster.Backend),
	)

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
	log.Info("PostgreSQL connected")

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
	log.Info("Redis connected")

	// 5. Health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		log.Fatal("PostgreSQL health check failed", zap.Error(err))
	}
	if err := redisClient.Health(ctx); err != nil {
		log.Fatal("Redis health check failed", zap.Error(err))
	}

	log.Info("All connections healthy")

	// 6. Initialize raster source
	source := newRasterSource(cfg, log)

	// 7. Load segmentation model (резидентная, одна на процесс;
	// отсутствие файла весов не мешает основным метрикам)
	model, err := segmentation.NewModel(&cfg.Segmentation, log)
	if err != nil {
		log.Fatal("Failed to build segmentation model", zap.Error(err))
	}
	if !model.Loaded() {
		log.Warn("Segmentation weights unavailable, cross-check will degrade to empty masks",
			zap.String("weights_path", cfg.Segmentation.WeightsPath))
	}

	// 8. Initialize repositories
	inspectionRepo := postgres.NewInspectionRepository(db, log)
	cacheRepo := cache.NewCacheRepository(redisClient)
	streamRepo := redisRepo.NewStreamRepository(redisClient.Client(), log)

	log.Info("Repositories initialized")

	// 9. Initialize pipeline collaborators and use cases
	pipeline := detection.NewPipeline(source, &cfg.Detection, log)
	checker := segmentation.NewCrossChecker(model, log)
	store := artifacts.NewStore(&cfg.Storage, log)

	analysisUC := usecase.NewAnalysisUseCase(
		pipeline,
		checker,
		source,
		store,
		inspectionRepo,
		cacheRepo,
		&cfg.Detection,
		log,
	)

	historyUC := usecase.NewHistoryUseCase(
		inspectionRepo,
		cacheRepo,
		&cfg.Storage,
		log,
	)

	log.Info("Use cases initialized")

	// 10. Initialize HTTP handlers and server
	analysisHandler := handler.NewAnalysisHandler(analysisUC, streamRepo, log)
	historyHandler := handler.NewHistoryHandler(historyUC, log)

	server := httpDelivery.NewServer(cfg, log, analysisHandler, historyHandler)

	log.Info("HTTP server initialized")

	// 11. Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started successfully",
		zap.String("address", cfg.GetServerAddr()),
		zap.String("env", cfg.Server.Env),
	)

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped successfully")
}

// newRasterSource выбирает растровый бэкенд: удалённый вычислительный
// сервис или встроенный детерминированный источник для демо-режима
func newRasterSource(cfg *config.Config, log *zap.Logger) raster.Source {
	if cfg.Raster.Backend == "remote" {
		log.Info("Using remote raster backend", zap.String("base_url", cfg.Raster.BaseURL))
		return rasterapi.NewClient(&cfg.Raster, log)
	}
	log.Info("Using local demo raster backend")
	return local.NewDemoSource(time.Now().UTC())
}
