package rasterapi

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/raster"
)

func testRegion() orb.Polygon {
	return orb.Polygon{orb.Ring{
		{75.0, 25.0}, {75.1, 25.0}, {75.1, 25.1}, {75.0, 25.1}, {75.0, 25.0},
	}}
}

func testConfig(baseURL string) *config.RasterConfig {
	return &config.RasterConfig{
		Backend:        "remote",
		BaseURL:        baseURL,
		APIKey:         "test_key",
		RequestTimeout: 5,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
	}
}

func TestClient_Aggregate(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	expr := raster.Constant(1).MulConst(3)

	t.Run("successful request", func(t *testing.T) {
		var gotBody aggregateRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/aggregate", r.URL.Path)
			assert.Equal(t, "Bearer test_key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"value": 42.5}`))
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		v, ok, err := client.Aggregate(context.Background(), expr, testRegion(), raster.ReduceMean, 10)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 42.5, v)

		assert.Equal(t, "mean", gotBody.Reducer)
		assert.Equal(t, 10.0, gotBody.Scale)
		assert.NotEmpty(t, gotBody.Expression)
		require.NotNil(t, gotBody.Region)
		assert.Equal(t, "Polygon", gotBody.Region.Type)
	})

	t.Run("null value means empty statistic", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"value": null}`))
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		v, ok, err := client.Aggregate(context.Background(), expr, testRegion(), raster.ReduceSum, 30)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, v)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"malformed expression"}`))
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		_, _, err := client.Aggregate(context.Background(), expr, testRegion(), raster.ReduceMean, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
		assert.False(t, raster.IsTransient(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("transient errors are retried until success", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"value": 7}`))
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		v, ok, err := client.Aggregate(context.Background(), expr, testRegion(), raster.ReduceMean, 10)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 7.0, v)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after retry budget", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		_, _, err := client.Aggregate(context.Background(), expr, testRegion(), raster.ReduceMean, 10)
		require.Error(t, err)
		assert.True(t, raster.IsTransient(err))
		assert.Equal(t, int32(3), calls.Load(), "первая попытка плюс две повторные")
	})
}

func TestClient_Pixels(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	expr := raster.Image("USGS/SRTMGL1_003")

	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/pixels", r.URL.Path)
			w.Write([]byte(`{"width":2,"height":2,"bands":1,"values":[1.5,2.5,null,4.5]}`))
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		grid, err := client.Pixels(context.Background(), expr, testRegion(), 30)
		require.NoError(t, err)
		assert.Equal(t, 2, grid.Width)
		assert.Equal(t, 2, grid.Height)
		assert.Equal(t, 1, grid.Bands)
		assert.Equal(t, 1.5, grid.At(0, 0, 0))
		assert.Equal(t, 2.5, grid.At(1, 0, 0))
		assert.True(t, math.IsNaN(grid.At(0, 1, 0)), "null становится замаскированным пикселем")
		assert.Equal(t, 4.5, grid.At(1, 1, 0))
	})

	t.Run("size mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"width":2,"height":2,"bands":1,"values":[1.5]}`))
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		grid, err := client.Pixels(context.Background(), expr, testRegion(), 30)
		assert.Error(t, err)
		assert.Nil(t, grid)
		assert.Contains(t, err.Error(), "expected 4")
	})

	t.Run("invalid dimensions", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"width":0,"height":2,"bands":1,"values":[]}`))
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), logger)

		grid, err := client.Pixels(context.Background(), expr, testRegion(), 30)
		assert.Error(t, err)
		assert.Nil(t, grid)
		assert.Contains(t, err.Error(), "invalid grid dimensions")
	})
}
