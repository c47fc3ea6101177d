package usecase_test

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/mock"

	"github.com/mineguard-service/internal/detection"
	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/raster"
	"github.com/mineguard-service/internal/segmentation"
)

// MockDetector is a mock of the Detector interface
type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Run(ctx context.Context, lease orb.Polygon, window domain.DateRange) (*detection.Survey, error) {
	args := m.Called(ctx, lease, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*detection.Survey), args.Error(1)
}

// MockCorroborator is a mock of the Corroborator interface
type MockCorroborator struct {
	mock.Mock
}

func (m *MockCorroborator) Check(grid *raster.Grid) (*segmentation.Result, error) {
	args := m.Called(grid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*segmentation.Result), args.Error(1)
}

// MockRasterSource is a mock of raster.Source
type MockRasterSource struct {
	mock.Mock
}

func (m *MockRasterSource) Aggregate(ctx context.Context, expr raster.Expr, region orb.Polygon, reducer raster.Reducer, scale float64) (float64, bool, error) {
	args := m.Called(ctx, expr, region, reducer, scale)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (m *MockRasterSource) Pixels(ctx context.Context, expr raster.Expr, region orb.Polygon, scale float64) (*raster.Grid, error) {
	args := m.Called(ctx, expr, region, scale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*raster.Grid), args.Error(1)
}

// MockInspectionRepository is a mock of InspectionRepository
type MockInspectionRepository struct {
	mock.Mock
}

func (m *MockInspectionRepository) Save(ctx context.Context, inspection *domain.Inspection) error {
	args := m.Called(ctx, inspection)
	return args.Error(0)
}

func (m *MockInspectionRepository) GetByJobID(ctx context.Context, jobID string) (*domain.Inspection, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Inspection), args.Error(1)
}

func (m *MockInspectionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Inspection, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Inspection), args.Error(1)
}

// MockCacheRepository is a mock of CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheRepository) GetHistory(ctx context.Context, limit int) ([]*domain.Inspection, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Inspection), args.Error(1)
}

func (m *MockCacheRepository) SetHistory(ctx context.Context, limit int, inspections []*domain.Inspection, ttl time.Duration) error {
	args := m.Called(ctx, limit, inspections, ttl)
	return args.Error(0)
}

func (m *MockCacheRepository) InvalidateHistory(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
