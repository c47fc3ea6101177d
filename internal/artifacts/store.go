// Package artifacts отвечает за файлы результата анализа: карту
// участка, 3D-модель рельефа, отчёт и растры перекрёстной проверки.
// Файлы раскладываются по каталогу задания под статической директорией
// и раздаются сервером по прямым URL.
package artifacts

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/domain"
)

const (
	FileMap     = "map.geojson"
	FileTerrain = "terrain.json"
	FileReport  = "report.json"
	FileAIMask  = "ai_prediction.png"
	FileOverlay = "ai_overlay.jpg"
)

// Report - машиночитаемый отчёт задания, кладётся рядом с остальными
// артефактами
type Report struct {
	JobID          string         `json:"job_id"`
	GeneratedAt    time.Time      `json:"generated_at"`
	GeometrySource string         `json:"geometry_source"`
	WindowStart    string         `json:"window_start"`
	WindowEnd      string         `json:"window_end"`
	Metrics        domain.Metrics `json:"metrics"`
	HasViolation   bool           `json:"has_violation"`
}

type Store struct {
	staticDir string
	logger    *zap.Logger
}

func NewStore(cfg *config.StorageConfig, logger *zap.Logger) *Store {
	return &Store{
		staticDir: cfg.StaticDir,
		logger:    logger,
	}
}

// JobDir создаёт и возвращает каталог артефактов задания
func (s *Store) JobDir(jobID string) (string, error) {
	dir := filepath.Join(s.staticDir, "outputs", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	return dir, nil
}

// URL - путь, по которому артефакт раздаётся сервером
func (s *Store) URL(jobID, filename string) string {
	return "/static/outputs/" + jobID + "/" + filename
}

// SaveMap пишет GeoJSON-карту задания и возвращает её URL
func (s *Store) SaveMap(jobID string, doc *geojson.FeatureCollection) (string, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode map document: %w", err)
	}
	if err := s.writeFile(jobID, FileMap, data); err != nil {
		return "", err
	}
	return s.URL(jobID, FileMap), nil
}

// SaveReport пишет отчёт задания и возвращает его URL
func (s *Store) SaveReport(jobID string, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := s.writeFile(jobID, FileReport, data); err != nil {
		return "", err
	}
	return s.URL(jobID, FileReport), nil
}

// SaveTerrain пишет 3D-модель рельефа и возвращает её URL
func (s *Store) SaveTerrain(jobID string, model *TerrainModel) (string, error) {
	data, err := json.Marshal(model)
	if err != nil {
		return "", fmt.Errorf("failed to encode terrain model: %w", err)
	}
	if err := s.writeFile(jobID, FileTerrain, data); err != nil {
		return "", err
	}
	return s.URL(jobID, FileTerrain), nil
}

// SaveMask пишет бинарную маску модели и возвращает её URL
func (s *Store) SaveMask(jobID string, mask *image.Gray) (string, error) {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return "", err
	}
	if err := imaging.Save(mask, filepath.Join(dir, FileAIMask)); err != nil {
		return "", fmt.Errorf("failed to save ai mask: %w", err)
	}
	return s.URL(jobID, FileAIMask), nil
}

// SaveOverlay пишет снимок с обведёнными находками и возвращает его URL
func (s *Store) SaveOverlay(jobID string, overlay image.Image) (string, error) {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return "", err
	}
	if err := imaging.Save(overlay, filepath.Join(dir, FileOverlay), imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return s.URL(jobID, FileOverlay), nil
}

func (s *Store) writeFile(jobID, filename string, data []byte) error {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}

	s.logger.Debug("Artifact written",
		zap.String("job_id", jobID),
		zap.String("file", filename),
		zap.Int("bytes", len(data)))
	return nil
}
