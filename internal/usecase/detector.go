package usecase

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/mineguard-service/internal/detection"
	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/raster"
	"github.com/mineguard-service/internal/segmentation"
)

// Detector - интерфейс конвейера обнаружения добычи
type Detector interface {
	Run(ctx context.Context, lease orb.Polygon, window domain.DateRange) (*detection.Survey, error)
}

// Corroborator - интерфейс перекрёстной проверки находок нейросетью
type Corroborator interface {
	Check(grid *raster.Grid) (*segmentation.Result, error)
}
