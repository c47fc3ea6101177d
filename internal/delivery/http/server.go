package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberSwagger "github.com/swaggo/fiber-swagger"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/delivery/http/handler"
	"github.com/mineguard-service/internal/delivery/http/middleware"
	appErrors "github.com/mineguard-service/internal/pkg/errors"
)

// Server - HTTP сервер на основе Fiber
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *zap.Logger

	// Handlers
	analysisHandler *handler.AnalysisHandler
	historyHandler  *handler.HistoryHandler
}

// NewServer - создание нового HTTP сервера
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	analysisHandler *handler.AnalysisHandler,
	historyHandler *handler.HistoryHandler,
) *Server {
	app := fiber.New(fiber.Config{
		AppName: "MineGuard Detection Service",
		// Синхронное обследование ждёт несколько материализаций
		// растровых выражений, обычных 10 секунд не хватает
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: customErrorHandler(logger),
	})

	s := &Server{
		app:             app,
		config:          cfg,
		logger:          logger,
		analysisHandler: analysisHandler,
		historyHandler:  historyHandler,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares - настройка middleware
func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Logger(s.logger))
	s.app.Use(middleware.CORS())
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

// setupRoutes - настройка маршрутов
func (s *Server) setupRoutes() {
	// Swagger documentation route
	s.app.Get("/swagger/*", fiberSwagger.WrapHandler)

	// Артефакты обследований: карты, модели рельефа, отчёты, маски
	s.app.Static("/static", s.config.Storage.StaticDir)

	api := s.app.Group("/api/v1")

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	// Analysis routes
	api.Post("/analyze", s.analysisHandler.Analyze)
	api.Post("/analyze/async", s.analysisHandler.AnalyzeAsync)
	api.Get("/jobs/:job_id", s.analysisHandler.GetJob)

	// History routes
	api.Get("/history", s.historyHandler.GetHistory)
}

// Start - запуск HTTP сервера
func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown - graceful shutdown HTTP сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App возвращает приложение Fiber (для тестов)
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler переводит *AppError в ответы с кодом и статусом,
// остальное в 500 без утечки внутренних деталей
func customErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		logger.Error("HTTP Error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)

		if appErr, ok := err.(*appErrors.AppError); ok {
			return c.Status(appErr.StatusCode).JSON(fiber.Map{
				"error": appErr,
			})
		}

		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		return c.Status(code).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    appErrors.ErrInternalServer.Code,
				"message": err.Error(),
			},
		})
	}
}
