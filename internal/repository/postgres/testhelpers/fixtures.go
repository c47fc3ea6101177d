package testhelpers

import (
	"time"

	"github.com/google/uuid"

	"github.com/mineguard-service/internal/domain"
)

// NewInspectionFixture builds a realistic inspection record for tests.
// createdAt controls ordering in ListRecent assertions
func NewInspectionFixture(jobID string, createdAt time.Time) *domain.Inspection {
	mapURL := "/static/outputs/" + jobID + "/map.geojson"
	reportURL := "/static/outputs/" + jobID + "/report.json"

	return &domain.Inspection{
		ID:             uuid.New(),
		JobID:          jobID,
		Filename:       "lease.geojson",
		Status:         domain.StatusSuccess,
		GeometrySource: domain.GeometrySourceUploaded,
		IllegalAreaM2:  60410.12,
		LegalAreaM2:    124633.46,
		VolumeM3:       302102.99,
		TotalVolM3:     1113000.2,
		AvgDepthM:      5.0,
		Truckloads:     20140,
		MapURL:         &mapURL,
		ReportURL:      &reportURL,
		LeaseRing: []float64{
			75.800, 25.100,
			75.830, 25.100,
			75.830, 25.122,
			75.800, 25.122,
			75.800, 25.100,
		},
		CreatedAt: createdAt.UTC(),
	}
}
