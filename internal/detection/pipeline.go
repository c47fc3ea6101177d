// Package detection реализует конвейер обнаружения и количественной
// оценки незаконной добычи: слияние оптической и радарной сигнатур,
// оценку опорной высоты по нетронутому ободу, проверку глубины,
// разделение на законную и незаконную части и интегрирование
// площадей и объёмов.
package detection

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/pkg/utils"
	"github.com/mineguard-service/internal/raster"
)

// Survey - полный итог изысканий по одному участку
type Survey struct {
	Zone               orb.Polygon
	ReferenceElevation float64

	IllegalAreaM2   float64
	LegalAreaM2     float64
	TotalAreaM2     float64
	IllegalVolumeM3 float64
	TotalVolumeM3   float64
	AvgDepthM       float64
	Truckloads      int

	// Ленивые выражения для построения артефактов: материализуются
	// получателем через тот же растровый источник
	TrueColor raster.Expr
	Terrain   raster.Expr
}

// HasDisturbance сообщает, нашёл ли конвейер хоть какую-то
// подтверждённую добычу
func (s *Survey) HasDisturbance() bool {
	return s.TotalAreaM2 > 0
}

// Pipeline выполняет стадии обнаружения поверх растрового источника
type Pipeline struct {
	source raster.Source
	cfg    *config.DetectionConfig
	logger *zap.Logger
}

func NewPipeline(source raster.Source, cfg *config.DetectionConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

// Run прогоняет участок через все стадии конвейера.
// Порядок фиксирован: опорная высота оценивается по ободу кандидатной
// маски до того, как появится любая маска, зависящая от глубины
func (p *Pipeline) Run(ctx context.Context, lease orb.Polygon, window domain.DateRange) (*Survey, error) {
	zone := utils.SearchZone(lease, p.cfg.SearchBufferM)
	if len(zone) == 0 {
		return nil, fmt.Errorf("lease polygon is empty")
	}

	// Кандидатная маска: голый грунт по оптике, пересечённый с
	// шероховатой поверхностью по радару
	optical := p.opticalMask(window)
	radar := p.radarMask(window)
	candidate := optical.And(radar)

	// Обод: кольцо нетронутой поверхности сразу за кандидатными
	// пятнами, оценка высоты "крышки" карьера
	rim := candidate.FocalMax(p.cfg.RimDilationM).And(candidate.Not())

	dem := raster.Image(p.cfg.ElevationImage)

	refElev, rimFound, err := p.source.Aggregate(ctx,
		dem.UpdateMask(rim), zone, raster.ReduceMean, p.cfg.CoarseScaleM)
	if err != nil {
		return nil, fmt.Errorf("estimate reference elevation: %w", err)
	}
	if !rimFound {
		// Кандидатных пятен нет: вырожденный, но штатный исход,
		// все метрики ниже сводятся к нулю
		refElev = 0
	}

	p.logger.Debug("Reference elevation estimated",
		zap.Float64("elevation_m", refElev),
		zap.Bool("rim_found", rimFound))

	depth := raster.Constant(refElev).Sub(dem)
	verified := depth.Gt(p.cfg.MinDepthM)
	total := candidate.And(verified)

	inside := raster.PolygonMask(lease)
	legal := total.And(inside)
	illegal := total.And(inside.Not())

	survey := &Survey{
		Zone:               zone,
		ReferenceElevation: refElev,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.maskArea(gctx, illegal, zone)
		if err != nil {
			return fmt.Errorf("quantify illegal area: %w", err)
		}
		survey.IllegalAreaM2 = v
		return nil
	})
	g.Go(func() error {
		v, err := p.maskArea(gctx, legal, zone)
		if err != nil {
			return fmt.Errorf("quantify legal area: %w", err)
		}
		survey.LegalAreaM2 = v
		return nil
	})
	g.Go(func() error {
		v, err := p.maskArea(gctx, total, zone)
		if err != nil {
			return fmt.Errorf("quantify total area: %w", err)
		}
		survey.TotalAreaM2 = v
		return nil
	})
	g.Go(func() error {
		v, err := p.maskVolume(gctx, depth, illegal, zone)
		if err != nil {
			return fmt.Errorf("quantify illegal volume: %w", err)
		}
		survey.IllegalVolumeM3 = v
		return nil
	})
	g.Go(func() error {
		v, err := p.maskVolume(gctx, depth, total, zone)
		if err != nil {
			return fmt.Errorf("quantify total volume: %w", err)
		}
		survey.TotalVolumeM3 = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if survey.IllegalAreaM2 > 0 {
		survey.AvgDepthM = survey.IllegalVolumeM3 / survey.IllegalAreaM2
	}
	survey.Truckloads = int(survey.IllegalVolumeM3 / p.cfg.TruckCapacityM3)

	survey.TrueColor = p.trueColor(window)
	survey.Terrain = p.terrain(depth, total, legal, illegal)

	p.logger.Info("Detection pipeline finished",
		zap.Float64("illegal_area_m2", survey.IllegalAreaM2),
		zap.Float64("legal_area_m2", survey.LegalAreaM2),
		zap.Float64("illegal_volume_m3", survey.IllegalVolumeM3),
		zap.Float64("avg_depth_m", survey.AvgDepthM),
		zap.Int("truckloads", survey.Truckloads))

	return survey, nil
}

// opticalMask - голый грунт: медианный безоблачный композит и порог
// по нормализованному вегетационному индексу
func (p *Pipeline) opticalMask(window domain.DateRange) raster.Expr {
	return raster.Collection(p.cfg.OpticalCollection).
		FilterDate(window.Start, window.End).
		FilterLT("CLOUDY_PIXEL_PERCENTAGE", p.cfg.MaxCloudPercent).
		Median().
		NormalizedDifference("B8", "B4").
		Lt(p.cfg.OpticalThreshold)
}

// radarMask - шероховатость: медиана обратного рассеяния VV в
// децибелах и порог на локальное стандартное отклонение
func (p *Pipeline) radarMask(window domain.DateRange) raster.Expr {
	return raster.Collection(p.cfg.RadarCollection).
		FilterDate(window.Start, window.End).
		FilterEQ("instrumentMode", "IW").
		FilterEQ("transmitterReceiverPolarisation", "VV").
		Select("VV").
		Median().
		ClampMin(0.001).
		Log10().
		MulConst(10).
		FocalStdDev(p.cfg.RadarTextureRadiusPx).
		Gt(p.cfg.RadarThreshold)
}

func (p *Pipeline) trueColor(window domain.DateRange) raster.Expr {
	return raster.Collection(p.cfg.OpticalCollection).
		FilterDate(window.Start, window.End).
		FilterLT("CLOUDY_PIXEL_PERCENTAGE", p.cfg.MaxCloudPercent).
		Select("B4", "B3", "B2").
		Median().
		DivConst(3000).
		MulConst(255)
}

// terrain - двухканальный растр для 3D-модели: глубина выемки и
// статус пикселя (0 фон, 1 незаконная добыча, 2 законная)
func (p *Pipeline) terrain(depth, total, legal, illegal raster.Expr) raster.Expr {
	depthBand := depth.UpdateMask(total).Unmask(0)
	statusBand := legal.MulConst(2).Add(illegal).Unmask(0)
	return depthBand.AddBands(statusBand)
}

// maskArea - площадь маски в квадратных метрах на мелком масштабе.
// Пустая маска даёт нулевую площадь
func (p *Pipeline) maskArea(ctx context.Context, mask raster.Expr, zone orb.Polygon) (float64, error) {
	v, ok, err := p.source.Aggregate(ctx,
		raster.PixelArea().UpdateMask(mask),
		zone, raster.ReduceSum, p.cfg.FineScaleM)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return v, nil
}

// maskVolume - объём выемки под маской: глубина, умноженная на площадь
// пикселя, на масштабе ЦМР
func (p *Pipeline) maskVolume(ctx context.Context, depth, mask raster.Expr, zone orb.Polygon) (float64, error) {
	v, ok, err := p.source.Aggregate(ctx,
		depth.UpdateMask(mask).Mul(raster.PixelArea()),
		zone, raster.ReduceSum, p.cfg.CoarseScaleM)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return v, nil
}
