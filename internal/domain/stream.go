package domain

import "time"

// Stream names (должны совпадать с публикующим фронтенд-бэкендом)
const (
	StreamAnalysisJobs = "stream:analysis:jobs"
	StreamAnalysisDone = "stream:analysis:done"
)

// AnalysisRequestedEvent - входящее событие на обследование участка.
// Геометрия границ передаётся как WKT, чтобы событие оставалось
// самодостаточным JSON-документом
type AnalysisRequestedEvent struct {
	JobID       string    `json:"job_id"`
	Filename    string    `json:"filename"`
	LeaseWKT    *string   `json:"lease_wkt,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// HasLease проверяет, приложена ли к событию геометрия границ
func (e *AnalysisRequestedEvent) HasLease() bool {
	return e.LeaseWKT != nil && *e.LeaseWKT != ""
}

// HasDateWindow проверяет наличие явного временного окна выборки
func (e *AnalysisRequestedEvent) HasDateWindow() bool {
	return e.StartDate != "" && e.EndDate != ""
}

// AnalysisCompletedEvent - результат обследования
type AnalysisCompletedEvent struct {
	JobID         string    `json:"job_id"`
	Status        string    `json:"status"`
	IllegalAreaM2 float64   `json:"illegal_area_m2"`
	VolumeM3      float64   `json:"volume_m3"`
	Truckloads    int       `json:"truckloads"`
	Error         string    `json:"error,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// StreamMessage - сообщение из Redis Stream
type StreamMessage struct {
	ID   string
	Data string
}
