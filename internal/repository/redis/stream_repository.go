// Package redis реализует очередь заданий на обследование поверх
// Redis Streams: публикацию событий, consumer group и чтение с
// подтверждением обработки.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/domain/repository"
)

const (
	// readBatchSize - сколько сообщений забирается одним XREADGROUP
	readBatchSize = 10
	// readBlock - пауза блокирующего чтения и выдержка после сбоя
	readBlock = time.Second
)

type streamRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStreamRepository создает новый экземпляр StreamRepository
func NewStreamRepository(client *redis.Client, logger *zap.Logger) repository.StreamRepository {
	return &streamRepository{
		client: client,
		logger: logger,
	}
}

// CreateConsumerGroup создаёт consumer group для стрима.
// Группа начинает с "$": воркеры видят только задания, поставленные
// после её создания. MKSTREAM создаёт стрим, если его ещё нет
func (r *streamRepository) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP означает, что группа уже существует
		if err.Error() == "BUSYGROUP Consumer Group name already exists" {
			r.logger.Debug("Consumer group already exists",
				zap.String("stream", stream),
				zap.String("group", group))
			return nil
		}
		r.logger.Error("Failed to create consumer group",
			zap.String("stream", stream),
			zap.String("group", group),
			zap.Error(err))
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	r.logger.Info("Consumer group created",
		zap.String("stream", stream),
		zap.String("group", group))
	return nil
}

// ConsumeStream читает сообщения из стрима через consumer group.
// Канал закрывается при отмене контекста; сообщения остаются в PEL
// группы до явного AckMessage
func (r *streamRepository) ConsumeStream(ctx context.Context, stream, group, consumer string) (<-chan domain.StreamMessage, error) {
	msgChan := make(chan domain.StreamMessage, readBatchSize)
	go r.consumeLoop(ctx, stream, group, consumer, msgChan)
	return msgChan, nil
}

func (r *streamRepository) consumeLoop(ctx context.Context, stream, group, consumer string, msgChan chan<- domain.StreamMessage) {
	defer close(msgChan)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stream consumer stopped",
				zap.String("stream", stream),
				zap.String("consumer", consumer))
			return
		default:
		}

		result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    readBatchSize,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Нет новых сообщений
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("Failed to read from stream",
				zap.String("stream", stream),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readBlock):
			}
			continue
		}

		for _, res := range result {
			for _, msg := range res.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					r.logger.Warn("Message does not contain 'data' field",
						zap.String("message_id", msg.ID))
					continue
				}

				select {
				case msgChan <- domain.StreamMessage{ID: msg.ID, Data: data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// AckMessage подтверждает обработку сообщения
func (r *streamRepository) AckMessage(ctx context.Context, stream, group, messageID string) error {
	err := r.client.XAck(ctx, stream, group, messageID).Err()
	if err != nil {
		r.logger.Error("Failed to acknowledge message",
			zap.String("stream", stream),
			zap.String("group", group),
			zap.String("message_id", messageID),
			zap.Error(err))
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}

	r.logger.Debug("Message acknowledged", zap.String("message_id", messageID))
	return nil
}

// PublishToStream публикует сообщение в стрим. Данные сериализуются в
// JSON и кладутся в поле "data", формат согласован с потребителями
func (r *streamRepository) PublishToStream(ctx context.Context, stream string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		r.logger.Error("Failed to marshal data",
			zap.String("stream", stream),
			zap.Error(err))
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": string(jsonData)},
	}).Result()
	if err != nil {
		r.logger.Error("Failed to publish to stream",
			zap.String("stream", stream),
			zap.Error(err))
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	r.logger.Debug("Message published to stream",
		zap.String("stream", stream),
		zap.String("message_id", id))
	return nil
}
