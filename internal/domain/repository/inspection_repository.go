package repository

import (
	"context"

	"github.com/mineguard-service/internal/domain"
)

// InspectionRepository определяет методы для хранения результатов обследований
type InspectionRepository interface {
	// Save сохраняет запись обследования
	Save(ctx context.Context, inspection *domain.Inspection) error

	// GetByJobID возвращает обследование по идентификатору задачи
	GetByJobID(ctx context.Context, jobID string) (*domain.Inspection, error)

	// ListRecent возвращает последние обследования, новые первыми
	ListRecent(ctx context.Context, limit int) ([]*domain.Inspection, error)
}
