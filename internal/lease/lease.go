// Package lease отвечает за границу лицензионного участка: разбор
// загруженных файлов (GeoJSON, WKT) и полигон по умолчанию для
// запусков без файла.
package lease

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/mineguard-service/internal/pkg/utils"
)

// Default возвращает участок по умолчанию. Используется, когда файл
// границы не загружен или не разобран
func Default() orb.Polygon {
	return orb.Polygon{
		orb.Ring{
			{75.800, 25.100},
			{75.830, 25.100},
			{75.830, 25.122},
			{75.800, 25.122},
			{75.800, 25.100},
		},
	}
}

// Parse разбирает содержимое загруженного файла границы.
// JSON-документы трактуются как GeoJSON, остальное как WKT
func Parse(data []byte) (orb.Polygon, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("boundary file is empty")
	}
	if trimmed[0] == '{' {
		return ParseGeoJSON(trimmed)
	}
	return ParseWKT(string(trimmed))
}

// ParseGeoJSON принимает FeatureCollection, Feature или голую геометрию.
// Из мультиполигона берётся первый полигон
func ParseGeoJSON(data []byte) (orb.Polygon, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid geojson: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature collection: %w", err)
		}
		for _, f := range fc.Features {
			if p, ok := polygonFrom(f.Geometry); ok {
				return p, nil
			}
		}
		return nil, fmt.Errorf("feature collection contains no polygon")

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature: %w", err)
		}
		if p, ok := polygonFrom(f.Geometry); ok {
			return p, nil
		}
		return nil, fmt.Errorf("feature geometry is not a polygon")

	case "Polygon", "MultiPolygon":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("invalid geometry: %w", err)
		}
		if p, ok := polygonFrom(g.Geometry()); ok {
			return p, nil
		}
		return nil, fmt.Errorf("geometry is not a polygon")

	default:
		return nil, fmt.Errorf("unsupported geojson type: %q", probe.Type)
	}
}

// ParseWKT разбирает границу в формате Well-Known Text
func ParseWKT(s string) (orb.Polygon, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid wkt: %w", err)
	}
	if p, ok := polygonFrom(g); ok {
		return p, nil
	}
	return nil, fmt.Errorf("wkt geometry is not a polygon")
}

func polygonFrom(g orb.Geometry) (orb.Polygon, bool) {
	switch geom := g.(type) {
	case orb.Polygon:
		if validOuterRing(geom) {
			return geom, true
		}
	case orb.MultiPolygon:
		if len(geom) > 0 && validOuterRing(geom[0]) {
			return geom[0], true
		}
	}
	return nil, false
}

// validOuterRing требует замкнутое кольцо из координат в пределах
// WGS84: файл с точками вне диапазона это не участок, а мусор
func validOuterRing(p orb.Polygon) bool {
	if len(p) == 0 || len(p[0]) < 4 {
		return false
	}
	for _, pt := range p[0] {
		if !utils.ValidateCoordinates(pt[1], pt[0]) {
			return false
		}
	}
	return true
}
