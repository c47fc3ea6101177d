package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/domain"
	apperrors "github.com/mineguard-service/internal/pkg/errors"
	"github.com/mineguard-service/internal/usecase"
)

func newHistoryUseCase(inspRepo *MockInspectionRepository, cacheRepo *MockCacheRepository) *usecase.HistoryUseCase {
	cfg := &config.StorageConfig{HistoryTTL: time.Minute, HistoryLimit: 50}
	return usecase.NewHistoryUseCase(inspRepo, cacheRepo, cfg, zap.NewNop())
}

func TestHistoryUseCase_GetHistory(t *testing.T) {
	ctx := context.Background()
	inspections := []*domain.Inspection{
		{JobID: "a1b2c3d4", Status: domain.StatusSuccess, IllegalAreaM2: 60410.12},
		{JobID: "e5f6a7b8", Status: domain.StatusSuccess},
	}

	t.Run("cache hit skips database", func(t *testing.T) {
		inspRepo := &MockInspectionRepository{}
		cacheRepo := &MockCacheRepository{}
		cacheRepo.On("GetHistory", ctx, 10).Return(inspections, nil)

		uc := newHistoryUseCase(inspRepo, cacheRepo)
		got, err := uc.GetHistory(ctx, 10)

		require.NoError(t, err)
		assert.Equal(t, inspections, got)
		inspRepo.AssertNotCalled(t, "ListRecent", ctx, 10)
	})

	t.Run("cache miss falls through to database", func(t *testing.T) {
		inspRepo := &MockInspectionRepository{}
		cacheRepo := &MockCacheRepository{}
		cacheRepo.On("GetHistory", ctx, 10).Return(nil, nil)
		inspRepo.On("ListRecent", ctx, 10).Return(inspections, nil)
		cacheRepo.On("SetHistory", ctx, 10, inspections, time.Minute).Return(nil)

		uc := newHistoryUseCase(inspRepo, cacheRepo)
		got, err := uc.GetHistory(ctx, 10)

		require.NoError(t, err)
		assert.Equal(t, inspections, got)
		cacheRepo.AssertCalled(t, "SetHistory", ctx, 10, inspections, time.Minute)
	})

	t.Run("cache failure degrades to database", func(t *testing.T) {
		inspRepo := &MockInspectionRepository{}
		cacheRepo := &MockCacheRepository{}
		cacheRepo.On("GetHistory", ctx, 10).Return(nil, errors.New("redis down"))
		inspRepo.On("ListRecent", ctx, 10).Return(inspections, nil)
		cacheRepo.On("SetHistory", ctx, 10, inspections, time.Minute).Return(errors.New("redis down"))

		uc := newHistoryUseCase(inspRepo, cacheRepo)
		got, err := uc.GetHistory(ctx, 10)

		require.NoError(t, err)
		assert.Equal(t, inspections, got)
	})

	t.Run("zero limit uses default", func(t *testing.T) {
		inspRepo := &MockInspectionRepository{}
		cacheRepo := &MockCacheRepository{}
		cacheRepo.On("GetHistory", ctx, 50).Return(inspections, nil)

		uc := newHistoryUseCase(inspRepo, cacheRepo)
		_, err := uc.GetHistory(ctx, 0)

		require.NoError(t, err)
		cacheRepo.AssertCalled(t, "GetHistory", ctx, 50)
	})

	t.Run("limit above maximum rejected", func(t *testing.T) {
		inspRepo := &MockInspectionRepository{}
		cacheRepo := &MockCacheRepository{}

		uc := newHistoryUseCase(inspRepo, cacheRepo)
		_, err := uc.GetHistory(ctx, 501)

		assert.Equal(t, apperrors.ErrInvalidLimit, err)
		cacheRepo.AssertNotCalled(t, "GetHistory", ctx, 501)
	})

	t.Run("database failure", func(t *testing.T) {
		inspRepo := &MockInspectionRepository{}
		cacheRepo := &MockCacheRepository{}
		cacheRepo.On("GetHistory", ctx, 10).Return(nil, nil)
		inspRepo.On("ListRecent", ctx, 10).Return(nil, errors.New("db down"))

		uc := newHistoryUseCase(inspRepo, cacheRepo)
		_, err := uc.GetHistory(ctx, 10)

		assert.Equal(t, apperrors.ErrDatabaseError, err)
	})
}
