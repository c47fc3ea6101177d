// Package rasterapi - клиент удалённого растрового бэкенда. Сервис
// отправляет сериализованное дерево операций, бэкенд материализует его
// и возвращает зональную статистику или пиксельную сетку.
package rasterapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/raster"
)

type client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewClient создает новый клиент растрового бэкенда
func NewClient(cfg *config.RasterConfig, logger *zap.Logger) raster.Source {
	return &client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       logger,
	}
}

type aggregateRequest struct {
	Expression json.RawMessage   `json:"expression"`
	Region     *geojson.Geometry `json:"region"`
	Reducer    string            `json:"reducer"`
	Scale      float64           `json:"scale"`
}

// Value == nil означает пустую статистику: в регионе не осталось
// ни одного незамаскированного пикселя
type aggregateResponse struct {
	Value *float64 `json:"value"`
}

type pixelsRequest struct {
	Expression json.RawMessage   `json:"expression"`
	Region     *geojson.Geometry `json:"region"`
	Scale      float64           `json:"scale"`
}

type pixelsResponse struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Bands  int        `json:"bands"`
	Values []*float64 `json:"values"`
}

// Aggregate возвращает зональную статистику выражения по региону
func (c *client) Aggregate(
	ctx context.Context,
	expr raster.Expr,
	region orb.Polygon,
	reducer raster.Reducer,
	scale float64,
) (float64, bool, error) {
	exprJSON, err := json.Marshal(expr)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encode expression: %w", err)
	}

	reqBody := aggregateRequest{
		Expression: exprJSON,
		Region:     geojson.NewGeometry(region),
		Reducer:    string(reducer),
		Scale:      scale,
	}

	var respBody aggregateResponse
	if err := c.postJSON(ctx, "aggregate", "/v1/aggregate", reqBody, &respBody); err != nil {
		return 0, false, err
	}

	if respBody.Value == nil {
		return 0, false, nil
	}
	return *respBody.Value, true, nil
}

// Pixels материализует выражение в пиксельную сетку
func (c *client) Pixels(
	ctx context.Context,
	expr raster.Expr,
	region orb.Polygon,
	scale float64,
) (*raster.Grid, error) {
	exprJSON, err := json.Marshal(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode expression: %w", err)
	}

	reqBody := pixelsRequest{
		Expression: exprJSON,
		Region:     geojson.NewGeometry(region),
		Scale:      scale,
	}

	var respBody pixelsResponse
	if err := c.postJSON(ctx, "pixels", "/v1/pixels", reqBody, &respBody); err != nil {
		return nil, err
	}

	if respBody.Width <= 0 || respBody.Height <= 0 || respBody.Bands <= 0 {
		return nil, fmt.Errorf("raster backend returned invalid grid dimensions %dx%dx%d",
			respBody.Width, respBody.Height, respBody.Bands)
	}
	expected := respBody.Width * respBody.Height * respBody.Bands
	if len(respBody.Values) != expected {
		return nil, fmt.Errorf("raster backend returned %d values, expected %d",
			len(respBody.Values), expected)
	}

	grid := raster.NewGrid(respBody.Width, respBody.Height, respBody.Bands)
	for i, v := range respBody.Values {
		if v == nil {
			grid.Values[i] = math.NaN()
		} else {
			grid.Values[i] = *v
		}
	}
	return grid, nil
}

// postJSON выполняет запрос с ограниченными повторами. Повторяются
// только переходные отказы: сетевые ошибки, 429 и ответы 5xx
func (c *client) postJSON(ctx context.Context, op, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.baseURL + path

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if attempt > 1 {
			backoff := c.retryBackoff * time.Duration(1<<(attempt-2))
			c.logger.Warn("Retrying raster backend call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		var retryable bool
		retryable, lastErr = c.doOnce(ctx, op, url, payload, respBody)
		if lastErr == nil {
			return nil
		}
		if !retryable {
			return lastErr
		}
	}

	return lastErr
}

func (c *client) doOnce(ctx context.Context, op, url string, payload []byte, respBody interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, &raster.BackendError{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		c.logger.Error("Raster backend returned error",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode),
			zap.Bool("transient", transient),
			zap.String("body", string(body)))
		return transient, &raster.BackendError{
			Op:        op,
			Status:    resp.StatusCode,
			Transient: transient,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}
