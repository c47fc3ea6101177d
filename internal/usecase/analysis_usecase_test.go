package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/artifacts"
	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/detection"
	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/lease"
	apperrors "github.com/mineguard-service/internal/pkg/errors"
	"github.com/mineguard-service/internal/pkg/utils"
	"github.com/mineguard-service/internal/raster"
	"github.com/mineguard-service/internal/segmentation"
	"github.com/mineguard-service/internal/usecase"
	"github.com/mineguard-service/internal/usecase/dto"
)

type analysisFixture struct {
	detector  *MockDetector
	checker   *MockCorroborator
	source    *MockRasterSource
	inspRepo  *MockInspectionRepository
	cacheRepo *MockCacheRepository
	uc        *usecase.AnalysisUseCase
}

func newAnalysisFixture(t *testing.T) *analysisFixture {
	t.Helper()

	f := &analysisFixture{
		detector:  &MockDetector{},
		checker:   &MockCorroborator{},
		source:    &MockRasterSource{},
		inspRepo:  &MockInspectionRepository{},
		cacheRepo: &MockCacheRepository{},
	}

	store := artifacts.NewStore(&config.StorageConfig{StaticDir: t.TempDir()}, zap.NewNop())
	cfg := &config.DetectionConfig{CoarseScaleM: 30, FineScaleM: 10, TruckCapacityM3: 15}
	f.uc = usecase.NewAnalysisUseCase(
		f.detector, f.checker, f.source, store,
		f.inspRepo, f.cacheRepo, cfg, zap.NewNop())
	return f
}

func testSurvey(withDisturbance bool) *detection.Survey {
	s := &detection.Survey{
		Zone:               utils.SearchZone(lease.Default(), 3000),
		ReferenceElevation: 100,
		TrueColor:          raster.Constant(1),
		Terrain:            raster.Constant(2),
	}
	if withDisturbance {
		s.IllegalAreaM2 = 60410.123
		s.LegalAreaM2 = 124633.456
		s.TotalAreaM2 = 185043.579
		s.IllegalVolumeM3 = 302102.987
		s.TotalVolumeM3 = 1113000.2
		s.AvgDepthM = 5.0008
		s.Truckloads = 20140
	}
	return s
}

func trueColorGrid() *raster.Grid {
	g := raster.NewGrid(8, 8, 3)
	for i := range g.Values {
		g.Values[i] = 120
	}
	return g
}

func terrainGrid() *raster.Grid {
	g := raster.NewGrid(4, 4, 2)
	g.Set(1, 1, 0, 5)
	g.Set(1, 1, 1, 1)
	g.Set(2, 1, 0, 4)
	g.Set(2, 1, 1, 2)
	return g
}

func checkResult() *segmentation.Result {
	return &segmentation.Result{
		Mask:    image.NewGray(image.Rect(0, 0, 8, 8)),
		Overlay: image.NewNRGBA(image.Rect(0, 0, 8, 8)),
	}
}

func TestAnalysisUseCase_Analyze(t *testing.T) {
	ctx := context.Background()
	uploaded := []byte(`{"type":"Polygon","coordinates":[[[75.80,25.10],[75.83,25.10],[75.83,25.12],[75.80,25.12],[75.80,25.10]]]}`)

	f := newAnalysisFixture(t)
	survey := testSurvey(true)

	f.detector.On("Run", mock.Anything, mock.AnythingOfType("orb.Polygon"), mock.AnythingOfType("domain.DateRange")).
		Return(survey, nil)
	f.source.On("Pixels", mock.Anything, survey.TrueColor, mock.Anything, 10.0).Return(trueColorGrid(), nil)
	f.source.On("Pixels", mock.Anything, survey.Terrain, mock.Anything, 30.0).Return(terrainGrid(), nil)
	f.checker.On("Check", mock.Anything).Return(checkResult(), nil)
	f.inspRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Inspection")).Return(nil)
	f.cacheRepo.On("InvalidateHistory", mock.Anything).Return(nil)

	result, err := f.uc.Analyze(ctx, dto.AnalyzeRequest{Filename: "site.geojson", Geometry: uploaded})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Len(t, result.JobID, 8)
	assert.Equal(t, domain.GeometrySourceUploaded, result.GeometrySource)

	// Метрики округлены до двух знаков
	assert.InDelta(t, 60410.12, result.Metrics.IllegalAreaM2, 1e-9)
	assert.InDelta(t, 124633.46, result.Metrics.LegalAreaM2, 1e-9)
	assert.InDelta(t, 302102.99, result.Metrics.VolumeM3, 1e-9)
	assert.InDelta(t, 1113000.2, result.Metrics.TotalVolM3, 1e-9)
	assert.InDelta(t, 5.0, result.Metrics.AvgDepthM, 1e-9)
	assert.Equal(t, 20140, result.Metrics.Truckloads)

	prefix := "/static/outputs/" + result.JobID + "/"
	assert.Equal(t, prefix+artifacts.FileMap, result.Artifacts.MapURL)
	assert.Equal(t, prefix+artifacts.FileReport, result.Artifacts.ReportURL)
	assert.Equal(t, prefix+artifacts.FileAIMask, result.Artifacts.AIMaskURL)
	assert.Equal(t, prefix+artifacts.FileOverlay, result.Artifacts.AIOverlayURL)
	require.NotNil(t, result.Artifacts.ModelURL)
	assert.Equal(t, prefix+artifacts.FileTerrain, *result.Artifacts.ModelURL)

	f.inspRepo.AssertCalled(t, "Save", mock.Anything, mock.MatchedBy(func(i *domain.Inspection) bool {
		return i.JobID == result.JobID &&
			i.Filename == "site.geojson" &&
			i.Status == domain.StatusSuccess &&
			len(i.LeaseRing) == 10
	}))
	f.cacheRepo.AssertCalled(t, "InvalidateHistory", mock.Anything)
}

func TestAnalysisUseCase_Analyze_DefaultLease(t *testing.T) {
	f := newAnalysisFixture(t)
	survey := testSurvey(false)

	// Окно по умолчанию покрывает последние 90 дней
	f.detector.On("Run", mock.Anything, lease.Default(), mock.MatchedBy(func(w domain.DateRange) bool {
		return w.End.Sub(w.Start) == 90*24*time.Hour
	})).Return(survey, nil)
	f.source.On("Pixels", mock.Anything, survey.TrueColor, mock.Anything, 10.0).Return(trueColorGrid(), nil)
	f.checker.On("Check", mock.Anything).Return(checkResult(), nil)
	f.inspRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.cacheRepo.On("InvalidateHistory", mock.Anything).Return(nil)

	result, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{})

	require.NoError(t, err)
	assert.Equal(t, domain.GeometrySourceDefault, result.GeometrySource)
	assert.Zero(t, result.Metrics.IllegalAreaM2)
	assert.Zero(t, result.Metrics.Truckloads)

	// Без добычи 3D-модель не строится
	assert.Nil(t, result.Artifacts.ModelURL)
	f.source.AssertNotCalled(t, "Pixels", mock.Anything, survey.Terrain, mock.Anything, mock.Anything)
}

func TestAnalysisUseCase_Analyze_UnparseableGeometryFallsBack(t *testing.T) {
	f := newAnalysisFixture(t)
	survey := testSurvey(false)

	f.detector.On("Run", mock.Anything, lease.Default(), mock.Anything).Return(survey, nil)
	f.source.On("Pixels", mock.Anything, survey.TrueColor, mock.Anything, 10.0).Return(trueColorGrid(), nil)
	f.checker.On("Check", mock.Anything).Return(checkResult(), nil)
	f.inspRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.cacheRepo.On("InvalidateHistory", mock.Anything).Return(nil)

	result, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{
		Filename: "broken.geojson",
		Geometry: []byte("definitely not geometry"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.GeometrySourceDefault, result.GeometrySource)
	f.detector.AssertCalled(t, "Run", mock.Anything, lease.Default(), mock.Anything)
}

func TestAnalysisUseCase_Analyze_KeepsRequestedJobID(t *testing.T) {
	f := newAnalysisFixture(t)
	survey := testSurvey(false)

	f.detector.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(survey, nil)
	f.source.On("Pixels", mock.Anything, survey.TrueColor, mock.Anything, 10.0).Return(trueColorGrid(), nil)
	f.checker.On("Check", mock.Anything).Return(checkResult(), nil)
	f.inspRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.cacheRepo.On("InvalidateHistory", mock.Anything).Return(nil)

	result, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{JobID: "a1b2c3d4"})

	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", result.JobID)
}

func TestAnalysisUseCase_Analyze_InvalidDates(t *testing.T) {
	tests := []struct {
		name      string
		startDate string
		endDate   string
	}{
		{"end before start", "2026-03-01", "2026-01-01"},
		{"malformed start", "03/01/2026", "2026-03-01"},
		{"missing end", "2026-01-01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAnalysisFixture(t)

			_, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{
				StartDate: tt.startDate,
				EndDate:   tt.endDate,
			})

			require.Error(t, err)
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.ErrInvalidDateRange.Code, appErr.Code)
			f.detector.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAnalysisUseCase_Analyze_PipelineFailure(t *testing.T) {
	t.Run("generic failure", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.detector.On("Run", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("boom"))

		_, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{})

		assert.Equal(t, apperrors.ErrAnalysisFailed, err)
		f.inspRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("backend failure maps to bad gateway", func(t *testing.T) {
		f := newAnalysisFixture(t)
		backendErr := fmt.Errorf("estimate reference elevation: %w", &raster.BackendError{
			Op:        "aggregate",
			Status:    503,
			Transient: true,
			Err:       errors.New("service unavailable"),
		})
		f.detector.On("Run", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, backendErr)

		_, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{})

		assert.Equal(t, apperrors.ErrRasterBackend, err)
	})
}

func TestAnalysisUseCase_Analyze_CrossCheckDegrades(t *testing.T) {
	f := newAnalysisFixture(t)
	survey := testSurvey(true)

	f.detector.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(survey, nil)
	f.source.On("Pixels", mock.Anything, survey.TrueColor, mock.Anything, 10.0).
		Return(nil, errors.New("composite unavailable"))
	f.source.On("Pixels", mock.Anything, survey.Terrain, mock.Anything, 30.0).Return(terrainGrid(), nil)
	f.inspRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.cacheRepo.On("InvalidateHistory", mock.Anything).Return(nil)

	result, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{})

	require.NoError(t, err)
	assert.Empty(t, result.Artifacts.AIMaskURL)
	assert.Empty(t, result.Artifacts.AIOverlayURL)
	assert.NotEmpty(t, result.Artifacts.MapURL)
	f.checker.AssertNotCalled(t, "Check", mock.Anything)
}

func TestAnalysisUseCase_Analyze_PersistFailureDoesNotLoseResult(t *testing.T) {
	f := newAnalysisFixture(t)
	survey := testSurvey(false)

	f.detector.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(survey, nil)
	f.source.On("Pixels", mock.Anything, survey.TrueColor, mock.Anything, 10.0).Return(trueColorGrid(), nil)
	f.checker.On("Check", mock.Anything).Return(checkResult(), nil)
	f.inspRepo.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))

	result, err := f.uc.Analyze(context.Background(), dto.AnalyzeRequest{})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	f.cacheRepo.AssertNotCalled(t, "InvalidateHistory", mock.Anything)
}

func TestAnalysisUseCase_GetJob(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		f := newAnalysisFixture(t)
		stored := &domain.Inspection{JobID: "a1b2c3d4", Status: domain.StatusSuccess}
		f.inspRepo.On("GetByJobID", ctx, "a1b2c3d4").Return(stored, nil)

		inspection, err := f.uc.GetJob(ctx, "a1b2c3d4")

		require.NoError(t, err)
		assert.Equal(t, stored, inspection)
	})

	t.Run("not found", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.inspRepo.On("GetByJobID", ctx, "missing1").Return(nil, nil)

		_, err := f.uc.GetJob(ctx, "missing1")

		assert.Equal(t, apperrors.ErrJobNotFound, err)
	})

	t.Run("empty job id", func(t *testing.T) {
		f := newAnalysisFixture(t)

		_, err := f.uc.GetJob(ctx, "")

		assert.Equal(t, apperrors.ErrInvalidRequest, err)
	})

	t.Run("database failure", func(t *testing.T) {
		f := newAnalysisFixture(t)
		f.inspRepo.On("GetByJobID", ctx, "a1b2c3d4").Return(nil, errors.New("db down"))

		_, err := f.uc.GetJob(ctx, "a1b2c3d4")

		assert.Equal(t, apperrors.ErrDatabaseError, err)
	})
}
