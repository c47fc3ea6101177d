package dto

// AnalyzeRequest - запрос на обследование участка.
// Geometry - сырое содержимое приложенного файла границ (GeoJSON или
// WKT); пустое значение означает обследование участка по умолчанию.
// JobID заполняется только воркером, повторно запускающим задачу из
// очереди; при синхронном вызове идентификатор выдаёт сам usecase.
type AnalyzeRequest struct {
	JobID     string `json:"job_id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Geometry  []byte `json:"-"`
	StartDate string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// HistoryRequest - запрос истории обследований
type HistoryRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=500"`
}
