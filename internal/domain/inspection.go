package domain

import (
	"time"

	"github.com/google/uuid"
)

// Metrics - количественные результаты обследования участка
type Metrics struct {
	IllegalAreaM2 float64 `json:"illegal_area_m2"`
	LegalAreaM2   float64 `json:"legal_area_m2"`
	VolumeM3      float64 `json:"volume_m3"`
	TotalVolM3    float64 `json:"total_vol_m3"`
	AvgDepthM     float64 `json:"avg_depth_m"`
	Truckloads    int     `json:"truckloads"`
}

// Artifacts - ссылки на артефакты, порождённые обследованием.
// ModelURL отсутствует, когда нарушенная площадь нулевая и
// строить 3D-модель не из чего.
type Artifacts struct {
	MapURL       string  `json:"map_url"`
	ModelURL     *string `json:"model_url"`
	ReportURL    string  `json:"report_url"`
	AIMaskURL    string  `json:"ai_mask_url"`
	AIOverlayURL string  `json:"ai_overlay_url"`
}

// Result - итог одного запуска конвейера обнаружения.
// GeometrySource различает "analyzed the requested site" от
// "analyzed the default site" при сбое разбора границ
type Result struct {
	Status         string    `json:"status"`
	JobID          string    `json:"job_id"`
	GeometrySource string    `json:"geometry_source"`
	Metrics        Metrics   `json:"metrics"`
	Artifacts      Artifacts `json:"artifacts"`
}

// Inspection - сохранённая запись обследования для истории
type Inspection struct {
	ID             uuid.UUID `json:"id" db:"id"`
	JobID          string    `json:"job_id" db:"job_id"`
	Filename       string    `json:"filename" db:"filename"`
	Status         string    `json:"status" db:"status"`
	GeometrySource string    `json:"geometry_source" db:"geometry_source"`
	IllegalAreaM2  float64   `json:"illegal_area_m2" db:"illegal_area_m2"`
	LegalAreaM2    float64   `json:"legal_area_m2" db:"legal_area_m2"`
	VolumeM3       float64   `json:"volume_m3" db:"volume_m3"`
	TotalVolM3     float64   `json:"total_vol_m3" db:"total_vol_m3"`
	AvgDepthM      float64   `json:"avg_depth_m" db:"avg_depth_m"`
	Truckloads     int       `json:"truckloads" db:"truckloads"`
	MapURL         *string   `json:"map_url,omitempty" db:"map_url"`
	ModelURL       *string   `json:"model_url,omitempty" db:"model_url"`
	ReportURL      *string   `json:"report_url,omitempty" db:"report_url"`
	AIMaskURL      *string   `json:"ai_mask_url,omitempty" db:"ai_mask_url"`
	AIOverlayURL   *string   `json:"ai_overlay_url,omitempty" db:"ai_overlay_url"`
	LeaseRing      []float64 `json:"lease_ring,omitempty" db:"-"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// HasViolation сообщает, зафиксирована ли добыча за границами участка
func (i *Inspection) HasViolation() bool {
	return i.IllegalAreaM2 > 0
}
