package utils

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// SearchZone строит зону анализа: границы лицензионного участка,
// расширенные наружу на bufferMeters с каждой стороны
func SearchZone(lease orb.Polygon, bufferMeters float64) orb.Polygon {
	if len(lease) == 0 || len(lease[0]) == 0 {
		return orb.Polygon{}
	}

	ring := lease[0]
	bound := geo.NewBoundAroundPoint(ring[0], bufferMeters)
	for _, pt := range ring[1:] {
		bound = bound.Union(geo.NewBoundAroundPoint(pt, bufferMeters))
	}

	return bound.ToPolygon()
}

// FlattenRing преобразует внешнее кольцо полигона в плоский массив
// lon,lat пар для хранения в float8[]
func FlattenRing(p orb.Polygon) []float64 {
	if len(p) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(p[0])*2)
	for _, pt := range p[0] {
		flat = append(flat, pt[0], pt[1])
	}
	return flat
}

// PolygonFromFlat восстанавливает полигон из плоского массива lon,lat пар
func PolygonFromFlat(flat []float64) orb.Polygon {
	if len(flat) < 8 || len(flat)%2 != 0 {
		return nil
	}
	ring := make(orb.Ring, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		ring = append(ring, orb.Point{flat[i], flat[i+1]})
	}
	return orb.Polygon{ring}
}

// ValidateCoordinates проверяет валидность координат
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
