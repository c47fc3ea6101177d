package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/delivery/http/handler"
	"github.com/mineguard-service/internal/domain"
	apperrors "github.com/mineguard-service/internal/pkg/errors"
)

// MockHistoryService is a mock of the HistoryService interface
type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) GetHistory(ctx context.Context, limit int) ([]*domain.Inspection, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Inspection), args.Error(1)
}

func newHistoryApp(historyUC *MockHistoryService) *fiber.App {
	h := handler.NewHistoryHandler(historyUC, zap.NewNop())

	app := fiber.New()
	app.Get("/api/v1/history", h.GetHistory)
	return app
}

func TestHistoryHandler_GetHistory(t *testing.T) {
	t.Run("returns inspections with meta", func(t *testing.T) {
		historyUC := &MockHistoryService{}
		app := newHistoryApp(historyUC)

		historyUC.On("GetHistory", mock.Anything, 10).Return([]*domain.Inspection{
			{JobID: "ab12cd34", Status: domain.StatusSuccess},
			{JobID: "ef56ab78", Status: domain.StatusFailed},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=10", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data []*domain.Inspection `json:"data"`
			Meta struct {
				Total int `json:"total"`
			} `json:"meta"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body.Data, 2)
		assert.Equal(t, 2, body.Meta.Total)

		historyUC.AssertExpectations(t)
	})

	t.Run("missing limit delegates default to usecase", func(t *testing.T) {
		historyUC := &MockHistoryService{}
		app := newHistoryApp(historyUC)

		historyUC.On("GetHistory", mock.Anything, 0).Return([]*domain.Inspection{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		historyUC.AssertExpectations(t)
	})

	t.Run("invalid limit maps to 400", func(t *testing.T) {
		historyUC := &MockHistoryService{}
		app := newHistoryApp(historyUC)

		historyUC.On("GetHistory", mock.Anything, 9999).Return(nil, apperrors.ErrInvalidLimit)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=9999", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
