package segmentation

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/raster"
)

func degradedModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(&config.SegmentationConfig{
		WeightsPath: filepath.Join(t.TempDir(), "nope.gob"),
		InputSize:   64,
	}, zap.NewNop())
	require.NoError(t, err)
	return m
}

func gradientGrid(w, h int) *raster.Grid {
	grid := raster.NewGrid(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			grid.Set(x, y, 0, float64(x*255/w))
			grid.Set(x, y, 1, float64(y*255/h))
			grid.Set(x, y, 2, 60)
		}
	}
	return grid
}

func TestCrossChecker_DegradedModelKeepsSourceIntact(t *testing.T) {
	checker := NewCrossChecker(degradedModel(t), zap.NewNop())
	grid := gradientGrid(40, 30)

	result, err := checker.Check(grid)

	require.NoError(t, err)
	assert.False(t, result.Detected)

	for _, v := range result.Mask.Pix {
		require.Zero(t, v, "без весов маска пустая")
	}

	src := gridToImage(grid)
	for _, p := range [][2]int{{0, 0}, {20, 15}, {39, 29}} {
		assert.Equal(t, src.NRGBAAt(p[0], p[1]), result.Overlay.NRGBAAt(p[0], p[1]),
			"оверлей без находок - нетронутая копия снимка")
	}
}

func TestCrossChecker_RejectsBadGrid(t *testing.T) {
	checker := NewCrossChecker(degradedModel(t), zap.NewNop())

	_, err := checker.Check(raster.NewGrid(10, 10, 1))
	assert.Error(t, err)

	_, err = checker.Check(nil)
	assert.Error(t, err)
}

// Положительные веса дают положительный отклик на всём кадре: маска
// заполняется целиком, и обводка ложится по рамке
func TestCrossChecker_OutlinesDetectedRegion(t *testing.T) {
	weights := make(map[string]*tensor.Dense, len(layerShapes))
	for name, shape := range layerShapes {
		total := 1
		for _, d := range shape {
			total *= d
		}
		backing := make([]float64, total)
		for i := range backing {
			backing[i] = 0.05
		}
		weights[name] = tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	}
	path := filepath.Join(t.TempDir(), "weights.gob")
	require.NoError(t, SaveWeights(path, weights))

	m, err := NewModel(&config.SegmentationConfig{WeightsPath: path, InputSize: 64}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, m.Loaded())

	checker := NewCrossChecker(m, zap.NewNop())
	grid := gradientGrid(48, 48)

	result, err := checker.Check(grid)

	require.NoError(t, err)
	assert.True(t, result.Detected)

	red := color.NRGBA{R: 255, A: 255}
	assert.Equal(t, red, result.Overlay.NRGBAAt(0, 0), "рамка кадра обведена")
	assert.NotEqual(t, red, result.Overlay.NRGBAAt(24, 24), "центр пятна не закрашен")
}

func TestDrawOutlines_SkipsInternalHoles(t *testing.T) {
	const w, h = 20, 20
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 3; y <= 16; y++ {
		for x := 3; x <= 16; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	// Внутренняя полость
	for y := 8; y <= 11; y++ {
		for x := 8; x <= 11; x++ {
			mask.SetGray(x, y, color.Gray{Y: 0})
		}
	}

	overlay := image.NewNRGBA(image.Rect(0, 0, w, h))
	count := drawOutlines(overlay, mask)

	assert.Equal(t, 1, count, "одно пятно с одной внешней границей")

	red := color.NRGBA{R: 255, A: 255}
	assert.Equal(t, red, overlay.NRGBAAt(3, 10), "внешняя граница обведена")
	assert.NotEqual(t, red, overlay.NRGBAAt(7, 10), "край полости не обводится")
}

func TestRethreshold(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 127, G: 127, B: 127, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 200, G: 200, B: 200, A: 255})

	mask := rethreshold(img)

	assert.Equal(t, uint8(0), mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), mask.GrayAt(0, 1).Y)
	assert.Equal(t, uint8(255), mask.GrayAt(1, 1).Y)
}

func TestRethreshold_ResizeRoundTripKeepsForegroundBounded(t *testing.T) {
	const full, small = 96, 64

	src := image.NewGray(image.Rect(0, 0, full, full))
	original := 0
	for y := 30; y < 50; y++ {
		for x := 30; x < 50; x++ {
			src.SetGray(x, y, color.Gray{Y: 255})
			original++
		}
	}

	// Тот же путь, что у маски модели: вниз к разрешению входа,
	// обратно к разрешению снимка и повторная бинаризация
	down := rethreshold(imaging.Resize(src, small, small, imaging.Lanczos))
	mask := rethreshold(imaging.Resize(down, full, full, imaging.Linear))

	count := 0
	minX, minY := full, full
	maxX, maxY := -1, -1
	for y := 0; y < full; y++ {
		for x := 0; x < full; x++ {
			if mask.GrayAt(x, y).Y == 0 {
				continue
			}
			count++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	require.Positive(t, count, "пятно не должно исчезнуть")
	assert.InDelta(t, original, count, float64(original)*0.3,
		"передний план меняется только на интерполяционную кайму")

	// Пятно остаётся в пределах каймы вокруг исходного квадрата
	assert.GreaterOrEqual(t, minX, 24)
	assert.GreaterOrEqual(t, minY, 24)
	assert.Less(t, maxX, 56)
	assert.Less(t, maxY, 56)
}
