package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/domain/repository"
	"github.com/mineguard-service/internal/pkg/utils"
)

const inspectionColumns = `
	id, job_id, filename, status, geometry_source,
	illegal_area_m2, legal_area_m2, volume_m3, total_vol_m3,
	avg_depth_m, truckloads,
	map_url, model_url, report_url, ai_mask_url, ai_overlay_url,
	lease_ring, created_at`

type inspectionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInspectionRepository создает новый экземпляр inspection repository
func NewInspectionRepository(db *DB, logger *zap.Logger) repository.InspectionRepository {
	return &inspectionRepository{
		db:     db,
		logger: logger,
	}
}

// Save сохраняет запись обследования
func (r *inspectionRepository) Save(ctx context.Context, inspection *domain.Inspection) error {
	query := `
		INSERT INTO inspections (` + inspectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.db.ExecContext(ctx, query,
		inspection.ID, inspection.JobID, inspection.Filename,
		inspection.Status, inspection.GeometrySource,
		inspection.IllegalAreaM2, inspection.LegalAreaM2,
		inspection.VolumeM3, inspection.TotalVolM3,
		inspection.AvgDepthM, inspection.Truckloads,
		inspection.MapURL, inspection.ModelURL, inspection.ReportURL,
		inspection.AIMaskURL, inspection.AIOverlayURL,
		pq.Array(inspection.LeaseRing), inspection.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}

	r.logger.Debug("Inspection saved", zap.String("job_id", inspection.JobID))
	return nil
}

// GetByJobID возвращает обследование по идентификатору задачи.
// Отсутствие записи не является ошибкой: возвращается nil, nil
func (r *inspectionRepository) GetByJobID(ctx context.Context, jobID string) (*domain.Inspection, error) {
	query := `SELECT` + inspectionColumns + ` FROM inspections WHERE job_id = $1`

	inspection, err := scanInspection(r.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inspection by job_id: %w", err)
	}
	return inspection, nil
}

// ListRecent возвращает последние обследования, новые первыми
func (r *inspectionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Inspection, error) {
	query := `SELECT` + inspectionColumns + ` FROM inspections ORDER BY created_at DESC, job_id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	defer rows.Close()

	inspections := make([]*domain.Inspection, 0, limit)
	for rows.Next() {
		inspection, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		inspections = append(inspections, inspection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspections rows error: %w", err)
	}

	return inspections, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInspection(row rowScanner) (*domain.Inspection, error) {
	var inspection domain.Inspection
	var ring pq.Float64Array

	if err := row.Scan(
		&inspection.ID, &inspection.JobID, &inspection.Filename,
		&inspection.Status, &inspection.GeometrySource,
		&inspection.IllegalAreaM2, &inspection.LegalAreaM2,
		&inspection.VolumeM3, &inspection.TotalVolM3,
		&inspection.AvgDepthM, &inspection.Truckloads,
		&inspection.MapURL, &inspection.ModelURL, &inspection.ReportURL,
		&inspection.AIMaskURL, &inspection.AIOverlayURL,
		&ring, &inspection.CreatedAt,
	); err != nil {
		return nil, err
	}

	// Усечённые или нечётные кольца из старых записей наружу не отдаём:
	// клиенты ждут массив, из которого восстанавливается полигон
	if utils.PolygonFromFlat(ring) != nil {
		inspection.LeaseRing = []float64(ring)
	}
	return &inspection, nil
}
