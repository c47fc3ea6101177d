package local

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Демонстрационный ландшафт: ровная местность на высоте 100 м с двумя
// карьерами. Первый лежит внутри участка по умолчанию, второй за его
// границей, но в пределах зоны поиска
const (
	demoOpticalCollection = "COPERNICUS/S2_SR_HARMONIZED"
	demoRadarCollection   = "COPERNICUS/S1_GRD"
	demoElevationImage    = "USGS/SRTMGL1_003"

	demoBaseElevation = 100.0
)

type demoPit struct {
	center  orb.Point
	radiusM float64
	depthM  float64
}

var demoPits = []demoPit{
	{center: orb.Point{75.8150, 25.1110}, radiusM: 220, depthM: 11},
	{center: orb.Point{75.8480, 25.1110}, radiusM: 160, depthM: 8},
}

// NewDemoSource собирает детерминированный источник для локального
// режима. Опорное время задаёт даты сцен так, чтобы окно "последние
// 90 дней" от него всегда находило снимки
func NewDemoSource(now time.Time) *Source {
	s := New()

	cloudCover := []float64{5, 8, 12}
	offsets := []float64{-50, 0, 50}
	opticalAges := []time.Duration{60, 45, 30}
	for i := range opticalAges {
		s.AddScene(demoOpticalCollection, Scene{
			Date:  now.Add(-opticalAges[i] * 24 * time.Hour),
			Meta:  map[string]interface{}{"CLOUDY_PIXEL_PERCENTAGE": cloudCover[i]},
			Bands: demoOpticalBands(offsets[i]),
		})
	}

	// Облачная сцена: без фильтра по облачности она пометила бы
	// нарушенной всю зону поиска
	s.AddScene(demoOpticalCollection, Scene{
		Date:  now.Add(-40 * 24 * time.Hour),
		Meta:  map[string]interface{}{"CLOUDY_PIXEL_PERCENTAGE": 85.0},
		Bands: demoCloudBands(),
	})

	// Устаревшая сцена за пределами любого разумного окна дат
	s.AddScene(demoOpticalCollection, Scene{
		Date:  now.Add(-200 * 24 * time.Hour),
		Meta:  map[string]interface{}{"CLOUDY_PIXEL_PERCENTAGE": 3.0},
		Bands: demoOpticalBands(0),
	})

	for _, age := range []time.Duration{55, 35} {
		s.AddScene(demoRadarCollection, Scene{
			Date: now.Add(-age * 24 * time.Hour),
			Meta: map[string]interface{}{
				"instrumentMode":                  "IW",
				"transmitterReceiverPolarisation": "VV",
			},
			Bands: map[string]BandFunc{"VV": demoBackscatterVV},
		})
	}

	// Сцена с другой поляризацией отсеивается фильтром метаданных
	s.AddScene(demoRadarCollection, Scene{
		Date: now.Add(-40 * 24 * time.Hour),
		Meta: map[string]interface{}{
			"instrumentMode":                  "IW",
			"transmitterReceiverPolarisation": "VH",
		},
		Bands: map[string]BandFunc{"VV": constantBand(0.5)},
	})

	s.SetImage(demoElevationImage, demoElevation)

	return s
}

// demoElevation - ЦМР: базовая высота минус параболические чаши карьеров
func demoElevation(lon, lat float64) float64 {
	elev := demoBaseElevation
	for _, pit := range demoPits {
		elev -= pitDepth(pit, lon, lat)
	}
	return elev
}

func pitDepth(pit demoPit, lon, lat float64) float64 {
	d := geo.Distance(orb.Point{lon, lat}, pit.center)
	if d >= pit.radiusM {
		return 0
	}
	ratio := d / pit.radiusM
	return pit.depthM * (1 - ratio*ratio)
}

// Голый грунт простирается чуть шире глубокой части чаши, поэтому
// итоговая маска после проверки глубины сжимается к ядру карьера
func demoDisturbed(lon, lat float64) bool {
	return withinPits(lon, lat, 1.10)
}

func demoRough(lon, lat float64) bool {
	return withinPits(lon, lat, 1.12)
}

func withinPits(lon, lat float64, factor float64) bool {
	pt := orb.Point{lon, lat}
	for _, pit := range demoPits {
		if geo.Distance(pt, pit.center) <= pit.radiusM*factor {
			return true
		}
	}
	return false
}

// demoOpticalBands - отражательная способность в DN (масштаб Sentinel-2).
// Растительность даёт высокий NDVI, голый грунт карьеров низкий
func demoOpticalBands(offset float64) map[string]BandFunc {
	mk := func(vegetated, bare float64) BandFunc {
		return func(lon, lat float64) float64 {
			if demoDisturbed(lon, lat) {
				return bare + offset
			}
			return vegetated + offset
		}
	}
	return map[string]BandFunc{
		"B8": mk(3000, 1200),
		"B4": mk(600, 1100),
		"B3": mk(800, 1000),
		"B2": mk(500, 900),
	}
}

func demoCloudBands() map[string]BandFunc {
	return map[string]BandFunc{
		"B8": constantBand(2000),
		"B4": constantBand(2000),
		"B3": constantBand(2000),
		"B2": constantBand(2000),
	}
}

// demoBackscatterVV - линейное обратное рассеяние: гладкий фон и
// высокочастотная рябь внутри карьеров, дающая локальную шероховатость
// выше порога в децибельном представлении
func demoBackscatterVV(lon, lat float64) float64 {
	const smooth = 0.08
	if !demoRough(lon, lat) {
		return smooth
	}
	return smooth + 0.06*math.Sin(lon*250000)*math.Sin(lat*250000)
}

func constantBand(v float64) BandFunc {
	return func(lon, lat float64) float64 { return v }
}
