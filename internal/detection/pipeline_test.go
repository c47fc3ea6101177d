package detection

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/lease"
	"github.com/mineguard-service/internal/raster/local"
)

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// Масштабы огрублены вдвое против боевых значений, свойства конвейера
// от масштаба не зависят, а тесты работают заметно быстрее
func testDetectionConfig() *config.DetectionConfig {
	return &config.DetectionConfig{
		OpticalCollection:    "COPERNICUS/S2_SR_HARMONIZED",
		RadarCollection:      "COPERNICUS/S1_GRD",
		ElevationImage:       "USGS/SRTMGL1_003",
		MaxCloudPercent:      20,
		OpticalThreshold:     0.07,
		RadarThreshold:       0.5,
		RadarTextureRadiusPx: 3,
		RimDilationM:         60,
		MinDepthM:            2,
		SearchBufferM:        3000,
		FineScaleM:           20,
		CoarseScaleM:         40,
		TruckCapacityM3:      15,
	}
}

func testWindow() domain.DateRange {
	return domain.DateRange{Start: testNow.AddDate(0, 0, -90), End: testNow}
}

func runPipeline(t *testing.T, cfg *config.DetectionConfig) *Survey {
	t.Helper()

	p := NewPipeline(local.NewDemoSource(testNow), cfg, zap.NewNop())
	survey, err := p.Run(context.Background(), lease.Default(), testWindow())
	require.NoError(t, err)
	return survey
}

func TestPipeline_QuantifiesBothPits(t *testing.T) {
	survey := runPipeline(t, testDetectionConfig())

	// Карьер в участке: ядро глубже 2 м имеет радиус около 199 м,
	// карьер за границей - около 139 м
	assert.InDelta(t, 124_000, survey.LegalAreaM2, 124_000*0.2)
	assert.InDelta(t, 60_000, survey.IllegalAreaM2, 60_000*0.2)
	assert.InDelta(t, 302_000, survey.IllegalVolumeM3, 302_000*0.2)
	assert.InDelta(t, 1_110_000, survey.TotalVolumeM3, 1_110_000*0.2)

	assert.InDelta(t, 100, survey.ReferenceElevation, 0.5,
		"обод лежит на нетронутой поверхности")
	assert.InDelta(t, 5.0, survey.AvgDepthM, 1.0)
	assert.Equal(t, int(survey.IllegalVolumeM3/15), survey.Truckloads)
	assert.True(t, survey.HasDisturbance())
}

func TestPipeline_LegalIllegalPartitionIsExact(t *testing.T) {
	survey := runPipeline(t, testDetectionConfig())

	assert.InDelta(t, survey.TotalAreaM2, survey.LegalAreaM2+survey.IllegalAreaM2, 1e-6,
		"законная и незаконная части разбивают общую маску без пересечений и остатка")
	assert.Greater(t, survey.LegalAreaM2, 0.0)
	assert.Greater(t, survey.IllegalAreaM2, 0.0)
}

func TestPipeline_MinDepthMonotonicity(t *testing.T) {
	shallow := testDetectionConfig()
	deep := testDetectionConfig()
	deep.MinDepthM = 6

	shallowSurvey := runPipeline(t, shallow)
	deepSurvey := runPipeline(t, deep)

	assert.Less(t, deepSurvey.TotalAreaM2, shallowSurvey.TotalAreaM2,
		"ужесточение порога глубины сжимает подтверждённую маску")
	assert.Less(t, deepSurvey.IllegalAreaM2, shallowSurvey.IllegalAreaM2)
	assert.LessOrEqual(t, deepSurvey.IllegalVolumeM3, shallowSurvey.IllegalVolumeM3)
}

func TestPipeline_EmptyWindowDegradesToZero(t *testing.T) {
	cfg := testDetectionConfig()
	p := NewPipeline(local.NewDemoSource(testNow), cfg, zap.NewNop())

	// Окно в будущем: ни одной сцены
	window := domain.DateRange{Start: testNow.AddDate(0, 0, 10), End: testNow.AddDate(0, 0, 20)}
	survey, err := p.Run(context.Background(), lease.Default(), window)

	require.NoError(t, err, "отсутствие снимков не ошибка, а штатный пустой результат")
	assert.Zero(t, survey.ReferenceElevation)
	assert.Zero(t, survey.IllegalAreaM2)
	assert.Zero(t, survey.LegalAreaM2)
	assert.Zero(t, survey.TotalAreaM2)
	assert.Zero(t, survey.IllegalVolumeM3)
	assert.Zero(t, survey.TotalVolumeM3)
	assert.Zero(t, survey.AvgDepthM)
	assert.Zero(t, survey.Truckloads)
	assert.False(t, survey.HasDisturbance())
}

func TestPipeline_Deterministic(t *testing.T) {
	first := runPipeline(t, testDetectionConfig())
	second := runPipeline(t, testDetectionConfig())

	assert.Equal(t, first.ReferenceElevation, second.ReferenceElevation)
	assert.Equal(t, first.IllegalAreaM2, second.IllegalAreaM2)
	assert.Equal(t, first.LegalAreaM2, second.LegalAreaM2)
	assert.Equal(t, first.IllegalVolumeM3, second.IllegalVolumeM3)
	assert.Equal(t, first.TotalVolumeM3, second.TotalVolumeM3)
	assert.Equal(t, first.Truckloads, second.Truckloads)
}

func TestPipeline_TerrainBands(t *testing.T) {
	cfg := testDetectionConfig()
	source := local.NewDemoSource(testNow)
	p := NewPipeline(source, cfg, zap.NewNop())

	survey, err := p.Run(context.Background(), lease.Default(), testWindow())
	require.NoError(t, err)

	grid, err := source.Pixels(context.Background(), survey.Terrain, survey.Zone, 60)
	require.NoError(t, err)
	require.Equal(t, 2, grid.Bands)

	statuses := map[float64]int{}
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			depth := grid.At(x, y, 0)
			status := grid.At(x, y, 1)
			require.False(t, math.IsNaN(depth), "канал глубины снят с маски")
			require.False(t, math.IsNaN(status))
			statuses[status]++
			if status == 0 {
				assert.Zero(t, depth)
			} else {
				assert.Greater(t, depth, 2.0, "ненулевой статус только там, где глубина подтверждена")
			}
		}
	}

	assert.Greater(t, statuses[0], 0, "фон присутствует")
	assert.Greater(t, statuses[1], 0, "незаконная добыча присутствует")
	assert.Greater(t, statuses[2], 0, "законная добыча присутствует")
	assert.Len(t, statuses, 3)
}

func TestPipeline_TrueColorIsThreeBands(t *testing.T) {
	cfg := testDetectionConfig()
	source := local.NewDemoSource(testNow)
	p := NewPipeline(source, cfg, zap.NewNop())

	survey, err := p.Run(context.Background(), lease.Default(), testWindow())
	require.NoError(t, err)

	grid, err := source.Pixels(context.Background(), survey.TrueColor, survey.Zone, 60)
	require.NoError(t, err)
	assert.Equal(t, 3, grid.Bands)

	v := grid.At(grid.Width/2, grid.Height/2, 0)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 255.0)
}
