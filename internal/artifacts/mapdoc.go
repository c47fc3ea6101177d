package artifacts

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mineguard-service/internal/domain"
)

// BuildMap - GeoJSON-карта задания: граница участка с метриками в
// свойствах и зона поиска вокруг неё
func BuildMap(leasePoly, zone orb.Polygon, metrics domain.Metrics) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	leaseFeature := geojson.NewFeature(leasePoly)
	leaseFeature.Properties = geojson.Properties{
		"role":            "lease",
		"illegal_area_m2": metrics.IllegalAreaM2,
		"legal_area_m2":   metrics.LegalAreaM2,
		"volume_m3":       metrics.VolumeM3,
		"avg_depth_m":     metrics.AvgDepthM,
		"truckloads":      metrics.Truckloads,
	}
	fc.Append(leaseFeature)

	zoneFeature := geojson.NewFeature(zone)
	zoneFeature.Properties = geojson.Properties{
		"role": "search_zone",
	}
	fc.Append(zoneFeature)

	return fc
}
