package dto

// QueuedJobResponse - ответ на асинхронную постановку задачи
type QueuedJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
