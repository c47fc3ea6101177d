package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/domain/repository"
)

// historyKeyPattern покрывает все закешированные варианты истории,
// по ключу на каждый запрошенный limit
const historyKeyPattern = "history:*"

type cacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewCacheRepository(redis *Redis) repository.CacheRepository {
	return &cacheRepository{
		client: redis.Client(),
		logger: redis.logger,
	}
}

func (r *cacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		r.logger.Error("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	r.logger.Debug("Cache hit", zap.String("key", key))
	return val, nil
}

func (r *cacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := r.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		r.logger.Error("Failed to set cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set error: %w", err)
	}

	r.logger.Debug("Cache set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (r *cacheRepository) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if err != nil {
		r.logger.Error("Failed to delete from cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache delete error: %w", err)
	}

	r.logger.Debug("Cache deleted", zap.String("key", key))
	return nil
}

func (r *cacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	val, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.logger.Error("Failed to check cache existence", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("cache exists error: %w", err)
	}

	return val > 0, nil
}

// GetHistory получает закешированную историю обследований
func (r *cacheRepository) GetHistory(ctx context.Context, limit int) ([]*domain.Inspection, error) {
	data, err := r.Get(ctx, historyKey(limit))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil // Cache miss
	}

	var inspections []*domain.Inspection
	if err := json.Unmarshal(data, &inspections); err != nil {
		r.logger.Error("Failed to unmarshal history from cache", zap.Error(err))
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	return inspections, nil
}

// SetHistory сохраняет историю обследований в кеше
func (r *cacheRepository) SetHistory(ctx context.Context, limit int, inspections []*domain.Inspection, ttl time.Duration) error {
	data, err := json.Marshal(inspections)
	if err != nil {
		r.logger.Error("Failed to marshal history", zap.Error(err))
		return fmt.Errorf("marshal history: %w", err)
	}

	return r.Set(ctx, historyKey(limit), data, ttl)
}

// InvalidateHistory сбрасывает все закешированные варианты истории.
// Вызывается после каждого успешного обследования
func (r *cacheRepository) InvalidateHistory(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, historyKeyPattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to scan history keys", zap.Error(err))
		return fmt.Errorf("cache scan error: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Error("Failed to invalidate history cache", zap.Error(err))
		return fmt.Errorf("cache invalidate error: %w", err)
	}

	r.logger.Debug("History cache invalidated", zap.Int("keys", len(keys)))
	return nil
}

func historyKey(limit int) string {
	return fmt.Sprintf("history:limit:%d", limit)
}
