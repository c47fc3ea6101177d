package handler

import (
	"context"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/domain/repository"
	"github.com/mineguard-service/internal/lease"
	appErrors "github.com/mineguard-service/internal/pkg/errors"
	"github.com/mineguard-service/internal/pkg/utils"
	"github.com/mineguard-service/internal/pkg/validator"
	"github.com/mineguard-service/internal/usecase"
	"github.com/mineguard-service/internal/usecase/dto"
)

// maxBoundaryFileSize ограничивает размер файла границ участка
const maxBoundaryFileSize = 5 << 20 // 5 MB

// AnalysisService - контракт usecase обследования для HTTP-слоя
type AnalysisService interface {
	Analyze(ctx context.Context, req dto.AnalyzeRequest) (*domain.Result, error)
	GetJob(ctx context.Context, jobID string) (*domain.Inspection, error)
}

// AnalysisHandler - обработчик запросов на обследование участка
type AnalysisHandler struct {
	analysisUC AnalysisService
	streamRepo repository.StreamRepository
	logger     *zap.Logger
}

// NewAnalysisHandler - создание нового AnalysisHandler
func NewAnalysisHandler(analysisUC AnalysisService, streamRepo repository.StreamRepository, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysisUC: analysisUC,
		streamRepo: streamRepo,
		logger:     logger,
	}
}

// Analyze godoc
// @Summary Обследовать участок на предмет незаконной добычи
// @Description Запускает полный конвейер обнаружения: слияние оптической и радарной сигнатур, проверку глубины по цифровой модели рельефа, разделение нарушений на законные и незаконные относительно границ участка и подсчёт площадей и объёмов. Файл границ (GeoJSON или WKT) опционален: без него анализируется участок по умолчанию, о чём сообщает поле geometry_source.
// @Tags Analysis
// @Accept multipart/form-data
// @Produce json
// @Param file formData file false "Файл границ участка (GeoJSON или WKT)"
// @Param start_date formData string false "Начало окна выборки снимков (YYYY-MM-DD)"
// @Param end_date formData string false "Конец окна выборки снимков (YYYY-MM-DD)"
// @Success 200 {object} utils.SuccessResponse{data=domain.Result}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/analyze [post]
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	result, err := h.analysisUC.Analyze(c.Context(), *req)
	if err != nil {
		return utils.SendError(c, err)
	}

	return utils.SendSuccess(c, result, nil)
}

// AnalyzeAsync godoc
// @Summary Поставить обследование в очередь
// @Description Публикует задание в Redis Stream и сразу возвращает идентификатор. Результат забирается через GET /jobs/{job_id} после обработки воркером.
// @Tags Analysis
// @Accept multipart/form-data
// @Produce json
// @Param file formData file false "Файл границ участка (GeoJSON или WKT)"
// @Param start_date formData string false "Начало окна выборки снимков (YYYY-MM-DD)"
// @Param end_date formData string false "Конец окна выборки снимков (YYYY-MM-DD)"
// @Success 202 {object} utils.SuccessResponse{data=dto.QueuedJobResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/analyze/async [post]
func (h *AnalysisHandler) AnalyzeAsync(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	jobID := usecase.NewJobID()
	event := &domain.AnalysisRequestedEvent{
		JobID:       jobID,
		Filename:    req.Filename,
		LeaseWKT:    leaseWKT(req.Geometry, h.logger),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		RequestedAt: time.Now().UTC(),
	}

	if err := h.streamRepo.PublishToStream(c.Context(), domain.StreamAnalysisJobs, event); err != nil {
		h.logger.Error("Failed to enqueue analysis job",
			zap.String("job_id", jobID), zap.Error(err))
		return utils.SendError(c, appErrors.ErrQueueError)
	}

	h.logger.Info("Analysis job queued",
		zap.String("job_id", jobID),
		zap.String("filename", req.Filename))

	return utils.SendAccepted(c, dto.QueuedJobResponse{
		JobID:  jobID,
		Status: domain.StatusQueued,
	})
}

// GetJob godoc
// @Summary Получить обследование по идентификатору задания
// @Tags Analysis
// @Produce json
// @Param job_id path string true "Идентификатор задания (8 символов)"
// @Success 200 {object} utils.SuccessResponse{data=domain.Inspection}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/jobs/{job_id} [get]
func (h *AnalysisHandler) GetJob(c *fiber.Ctx) error {
	inspection, err := h.analysisUC.GetJob(c.Context(), c.Params("job_id"))
	if err != nil {
		return utils.SendError(c, err)
	}

	return utils.SendSuccess(c, inspection, nil)
}

// parseRequest собирает AnalyzeRequest из multipart-формы.
// Отсутствие файла границ не ошибка, нечитаемый файл тоже:
// решение о подстановке участка по умолчанию принимает usecase
func (h *AnalysisHandler) parseRequest(c *fiber.Ctx) (*dto.AnalyzeRequest, error) {
	req := dto.AnalyzeRequest{
		StartDate: c.FormValue("start_date"),
		EndDate:   c.FormValue("end_date"),
	}

	if err := validator.Validate(&req); err != nil {
		return nil, appErrors.ErrInvalidRequest.WithDetails(validator.Details(err))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		// Формы без файла приходят штатно
		return &req, nil
	}
	if fileHeader.Size > maxBoundaryFileSize {
		return nil, appErrors.ErrInvalidRequest.WithDetails(map[string]interface{}{
			"file": "boundary file exceeds 5 MB",
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.logger.Warn("Failed to open boundary file", zap.Error(err))
		return &req, nil
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.logger.Warn("Failed to read boundary file", zap.Error(err))
		return &req, nil
	}

	req.Filename = fileHeader.Filename
	req.Geometry = data
	return &req, nil
}

// leaseWKT переводит приложенную геометрию в WKT для события очереди.
// Нечитаемая геометрия не публикуется: воркер возьмёт участок по
// умолчанию и пометит результат geometry_source=default
func leaseWKT(geometry []byte, logger *zap.Logger) *string {
	if len(geometry) == 0 {
		return nil
	}
	poly, err := lease.Parse(geometry)
	if err != nil {
		logger.Warn("Queued boundary file is not parseable, job will use default lease",
			zap.Error(err))
		return nil
	}
	s := wkt.MarshalString(poly)
	return &s
}
