package repository

import (
	"context"
	"time"

	"github.com/mineguard-service/internal/domain"
)

// CacheRepository определяет методы для работы с кешем
type CacheRepository interface {
	// Get получает значение из кеша по ключу
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кеше с TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет значение из кеша
	Delete(ctx context.Context, key string) error

	// Exists проверяет существование ключа
	Exists(ctx context.Context, key string) (bool, error)

	// GetHistory получает закешированную историю обследований
	GetHistory(ctx context.Context, limit int) ([]*domain.Inspection, error)

	// SetHistory сохраняет историю обследований в кеше
	SetHistory(ctx context.Context, limit int, inspections []*domain.Inspection, ttl time.Duration) error

	// InvalidateHistory сбрасывает все закешированные варианты истории
	InvalidateHistory(ctx context.Context) error
}
