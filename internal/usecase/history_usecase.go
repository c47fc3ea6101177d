package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/domain/repository"
	"github.com/mineguard-service/internal/pkg/errors"
)

// maxHistoryLimit ограничивает размер запрашиваемой истории
const maxHistoryLimit = 500

// HistoryUseCase обрабатывает бизнес-логику истории обследований
type HistoryUseCase struct {
	inspectionRepo repository.InspectionRepository
	cacheRepo      repository.CacheRepository
	cacheTTL       time.Duration
	defaultLimit   int
	logger         *zap.Logger
}

// NewHistoryUseCase создает новый экземпляр HistoryUseCase
func NewHistoryUseCase(
	inspectionRepo repository.InspectionRepository,
	cacheRepo repository.CacheRepository,
	cfg *config.StorageConfig,
	logger *zap.Logger,
) *HistoryUseCase {
	return &HistoryUseCase{
		inspectionRepo: inspectionRepo,
		cacheRepo:      cacheRepo,
		cacheTTL:       cfg.HistoryTTL,
		defaultLimit:   cfg.HistoryLimit,
		logger:         logger,
	}
}

// GetHistory возвращает последние обследования, используя кеш когда возможно
func (uc *HistoryUseCase) GetHistory(ctx context.Context, limit int) ([]*domain.Inspection, error) {
	if limit == 0 {
		limit = uc.defaultLimit
	}
	if limit < 0 || limit > maxHistoryLimit {
		return nil, errors.ErrInvalidLimit
	}

	// 1. Проверяем кеш
	cached, err := uc.cacheRepo.GetHistory(ctx, limit)
	if err == nil && cached != nil {
		uc.logger.Debug("History fetched from cache", zap.Int("limit", limit))
		return cached, nil
	}
	if err != nil {
		uc.logger.Warn("Failed to get history from cache", zap.Error(err))
	}

	// 2. Получаем из БД
	inspections, err := uc.inspectionRepo.ListRecent(ctx, limit)
	if err != nil {
		uc.logger.Error("Failed to list inspections", zap.Error(err))
		return nil, errors.ErrDatabaseError
	}

	// 3. Кешируем
	if err := uc.cacheRepo.SetHistory(ctx, limit, inspections, uc.cacheTTL); err != nil {
		uc.logger.Warn("Failed to cache history", zap.Error(err))
		// Не возвращаем ошибку, т.к. данные уже получены
	}

	return inspections, nil
}
