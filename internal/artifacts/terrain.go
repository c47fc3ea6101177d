package artifacts

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mineguard-service/internal/raster"
)

// Статусы пикселя в модели рельефа
const (
	TerrainBackground = 0
	TerrainIllegal    = 1
	TerrainLegal      = 2
)

// TerrainModel - сетка для 3D-визуализации: глубина выемки и статус
// каждого пикселя, строки идут с севера на юг
type TerrainModel struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	ScaleM    float64   `json:"scale_m"`
	Depth     []float64 `json:"depth"`
	Status    []int     `json:"status"`
	MaxDepthM float64   `json:"max_depth_m"`
	VolumeM3  float64   `json:"volume_m3"`
}

// BuildTerrain собирает модель из двухканальной сетки конвейера и
// обрезает пустую рамку: широкая зона поиска почти целиком фон,
// и тащить его в браузер незачем
func BuildTerrain(grid *raster.Grid, scaleM float64) (*TerrainModel, error) {
	if grid == nil || grid.Bands < 2 {
		return nil, fmt.Errorf("terrain needs a depth and status band")
	}

	minX, minY := grid.Width, grid.Height
	maxX, maxY := -1, -1
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			if terrainStatus(grid, x, y) != TerrainBackground || terrainDepth(grid, x, y) > 0 {
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
	}

	if maxX < 0 {
		return &TerrainModel{ScaleM: scaleM, Depth: []float64{}, Status: []int{}}, nil
	}

	w := maxX - minX + 1
	h := maxY - minY + 1
	model := &TerrainModel{
		Width:  w,
		Height: h,
		ScaleM: scaleM,
		Depth:  make([]float64, 0, w*h),
		Status: make([]int, 0, w*h),
	}

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			model.Depth = append(model.Depth, terrainDepth(grid, x, y))
			model.Status = append(model.Status, terrainStatus(grid, x, y))
		}
	}
	model.MaxDepthM = floats.Max(model.Depth)
	return model, nil
}

func terrainDepth(grid *raster.Grid, x, y int) float64 {
	v := grid.At(x, y, 0)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func terrainStatus(grid *raster.Grid, x, y int) int {
	v := grid.At(x, y, 1)
	if math.IsNaN(v) {
		return TerrainBackground
	}
	status := int(math.Round(v))
	if status < TerrainBackground {
		return TerrainBackground
	}
	if status > TerrainLegal {
		return TerrainLegal
	}
	return status
}
