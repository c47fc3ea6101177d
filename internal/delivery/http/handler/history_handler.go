package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/pkg/utils"
)

// HistoryService - контракт usecase истории для HTTP-слоя
type HistoryService interface {
	GetHistory(ctx context.Context, limit int) ([]*domain.Inspection, error)
}

// HistoryHandler - обработчик истории обследований
type HistoryHandler struct {
	historyUC HistoryService
	logger    *zap.Logger
}

// NewHistoryHandler - создание нового HistoryHandler
func NewHistoryHandler(historyUC HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		historyUC: historyUC,
		logger:    logger,
	}
}

// GetHistory godoc
// @Summary История обследований
// @Description Возвращает последние обследования, новые первыми. Ответ кешируется на стороне сервиса.
// @Tags History
// @Produce json
// @Param limit query int false "Максимальное количество записей (1-500)"
// @Success 200 {object} utils.SuccessResponse{data=[]domain.Inspection}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/history [get]
func (h *HistoryHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)

	inspections, err := h.historyUC.GetHistory(c.Context(), limit)
	if err != nil {
		return utils.SendError(c, err)
	}

	return utils.SendSuccess(c, inspections, &utils.Meta{
		Total: len(inspections),
		Limit: limit,
	})
}
