// Package analysis содержит воркер, обрабатывающий отложенные задания
// на обследование участков из Redis Stream.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/domain/repository"
	"github.com/mineguard-service/internal/usecase/dto"
	"github.com/mineguard-service/internal/worker"
)

// AnalysisService - контракт usecase обследования для воркера
type AnalysisService interface {
	Analyze(ctx context.Context, req dto.AnalyzeRequest) (*domain.Result, error)
}

// AnalysisWorker обрабатывает события обследования участков
type AnalysisWorker struct {
	*worker.BaseWorker
	streamRepo     repository.StreamRepository
	analysisUC     AnalysisService
	inspectionRepo repository.InspectionRepository
	consumerName   string
}

// NewAnalysisWorker создает новый AnalysisWorker
func NewAnalysisWorker(
	streamRepo repository.StreamRepository,
	analysisUC AnalysisService,
	inspectionRepo repository.InspectionRepository,
	consumerGroup string,
	logger *zap.Logger,
) *AnalysisWorker {
	hostname, _ := os.Hostname()
	consumerName := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	return &AnalysisWorker{
		BaseWorker:     worker.NewBaseWorker("analysis", consumerGroup, logger),
		streamRepo:     streamRepo,
		analysisUC:     analysisUC,
		inspectionRepo: inspectionRepo,
		consumerName:   consumerName,
	}
}

// Start запускает воркер
func (w *AnalysisWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting AnalysisWorker",
		zap.String("consumer_group", w.ConsumerGroup()),
		zap.String("consumer_name", w.consumerName))

	// Создаем consumer group
	if err := w.streamRepo.CreateConsumerGroup(ctx, domain.StreamAnalysisJobs, w.ConsumerGroup()); err != nil {
		logger.Error("Failed to create consumer group", zap.Error(err))
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	msgChan, err := w.streamRepo.ConsumeStream(ctx, domain.StreamAnalysisJobs, w.ConsumerGroup(), w.consumerName)
	if err != nil {
		return fmt.Errorf("failed to consume stream: %w", err)
	}

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()

		case msg, ok := <-msgChan:
			if !ok {
				logger.Info("Stream channel closed")
				return nil
			}
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage обрабатывает одно задание. Любой исход завершается
// подтверждением сообщения: упавшее обследование фиксируется записью
// failed и не должно крутиться в очереди, блокируя следующие задания
func (w *AnalysisWorker) handleMessage(ctx context.Context, msg domain.StreamMessage) {
	logger := w.Logger()

	event, err := w.parseMessage(msg)
	if err != nil {
		logger.Warn("Failed to parse message, skipping",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		w.ack(ctx, msg.ID)
		return
	}

	logger.Info("Processing analysis job",
		zap.String("job_id", event.JobID),
		zap.String("message_id", msg.ID))

	req := dto.AnalyzeRequest{
		JobID:     event.JobID,
		Filename:  event.Filename,
		StartDate: event.StartDate,
		EndDate:   event.EndDate,
	}
	if event.HasLease() {
		req.Geometry = []byte(*event.LeaseWKT)
	}

	result, err := w.analysisUC.Analyze(ctx, req)
	if err != nil {
		logger.Error("Analysis job failed",
			zap.String("job_id", event.JobID),
			zap.Error(err))
		w.recordFailure(ctx, event)
		w.publishDone(ctx, &domain.AnalysisCompletedEvent{
			JobID:       event.JobID,
			Status:      domain.StatusFailed,
			Error:       err.Error(),
			CompletedAt: time.Now().UTC(),
		})
		w.ack(ctx, msg.ID)
		return
	}

	w.publishDone(ctx, &domain.AnalysisCompletedEvent{
		JobID:         result.JobID,
		Status:        result.Status,
		IllegalAreaM2: result.Metrics.IllegalAreaM2,
		VolumeM3:      result.Metrics.VolumeM3,
		Truckloads:    result.Metrics.Truckloads,
		CompletedAt:   time.Now().UTC(),
	})
	w.ack(ctx, msg.ID)

	logger.Info("Analysis job completed",
		zap.String("job_id", result.JobID),
		zap.Float64("illegal_area_m2", result.Metrics.IllegalAreaM2))
}

// parseMessage десериализует событие из сообщения стрима
func (w *AnalysisWorker) parseMessage(msg domain.StreamMessage) (*domain.AnalysisRequestedEvent, error) {
	var event domain.AnalysisRequestedEvent
	if err := json.Unmarshal([]byte(msg.Data), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.JobID == "" {
		return nil, fmt.Errorf("event has no job_id")
	}
	return &event, nil
}

// recordFailure сохраняет запись о неудавшемся обследовании, чтобы
// GET /jobs/:job_id мог отличить "упало" от "ещё в очереди"
func (w *AnalysisWorker) recordFailure(ctx context.Context, event *domain.AnalysisRequestedEvent) {
	inspection := &domain.Inspection{
		ID:        uuid.New(),
		JobID:     event.JobID,
		Filename:  event.Filename,
		Status:    domain.StatusFailed,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.inspectionRepo.Save(ctx, inspection); err != nil {
		w.Logger().Error("Failed to record failed inspection",
			zap.String("job_id", event.JobID),
			zap.Error(err))
	}
}

func (w *AnalysisWorker) publishDone(ctx context.Context, event *domain.AnalysisCompletedEvent) {
	if err := w.streamRepo.PublishToStream(ctx, domain.StreamAnalysisDone, event); err != nil {
		w.Logger().Error("Failed to publish completion event",
			zap.String("job_id", event.JobID),
			zap.Error(err))
	}
}

func (w *AnalysisWorker) ack(ctx context.Context, messageID string) {
	if err := w.streamRepo.AckMessage(ctx, domain.StreamAnalysisJobs, w.ConsumerGroup(), messageID); err != nil {
		w.Logger().Error("Failed to ack message",
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}
