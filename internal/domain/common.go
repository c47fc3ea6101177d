package domain

import (
	"fmt"
	"time"
)

const (
	StatusSuccess    = "success"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

const (
	GeometrySourceUploaded = "uploaded"
	GeometrySourceDefault  = "default"
)

// DateRange - временное окно выборки снимков
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultDateRange возвращает окно за последние 90 дней
func DefaultDateRange(now time.Time) DateRange {
	return DateRange{
		Start: now.AddDate(0, 0, -90),
		End:   now,
	}
}

// Validate проверяет, что окно непустое и не вывернуто
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range is not set")
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("end date %s is not after start date %s",
			r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	return nil
}
