package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"genstudio/internal/shared/queue"
)

// ============================================================================
// 生成任务队列（Redis Streams）
// ============================================================================

// EnqueueGeneration 将生成任务加入队列，返回消息 ID
func (s *Store) EnqueueGeneration(ctx context.Context, generationID, generatorName string) (string, error) {
	msgID, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queue.KeyGenerationQueue,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"generation_id":  generationID,
			"generator_name": generatorName,
			"created_at":     time.Now().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue generation: %w", err)
	}
	return msgID, nil
}

// CreateConsumerGroup 创建消费者组（已存在时忽略）
func (s *Store) CreateConsumerGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, queue.KeyGenerationQueue, queue.WorkerConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP Consumer Group name already exists") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ConsumeGenerations 以消费者组方式读取待处理的生成任务
func (s *Store) ConsumeGenerations(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*queue.GenerationMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    queue.WorkerConsumerGroup,
		Consumer: consumerID,
		Streams:  []string{queue.KeyGenerationQueue, ">"},
		Count:    count,
		Block:    blockTimeout,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume generations: %w", err)
	}

	var messages []*queue.GenerationMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			genMsg := &queue.GenerationMessage{
				ID: msg.ID,
			}
			if v, ok := msg.Values["generation_id"].(string); ok {
				genMsg.GenerationID = v
			}
			if v, ok := msg.Values["generator_name"].(string); ok {
				genMsg.GeneratorName = v
			}
			if v, ok := msg.Values["created_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
					genMsg.CreatedAt = t
				}
			}
			messages = append(messages, genMsg)
		}
	}
	return messages, nil
}

// AckGeneration 确认消息已处理完成
func (s *Store) AckGeneration(ctx context.Context, messageID string) error {
	if err := s.client.XAck(ctx, queue.KeyGenerationQueue, queue.WorkerConsumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack generation message: %w", err)
	}
	return nil
}

// GetQueueLength 获取队列长度
func (s *Store) GetQueueLength(ctx context.Context) (int64, error) {
	length, err := s.client.XLen(ctx, queue.KeyGenerationQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

// GetPendingCount 获取已投递未确认的消息数
func (s *Store) GetPendingCount(ctx context.Context) (int64, error) {
	pending, err := s.client.XPending(ctx, queue.KeyGenerationQueue, queue.WorkerConsumerGroup).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return pending.Count, nil
}
