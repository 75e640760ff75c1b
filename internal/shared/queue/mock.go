// Package queue 消息队列 mock 实现
package queue

import (
	"context"
	"time"
)

// NoOpQueue 全空操作的 Queue 实现
//
// 供 handler 与回归测试在没有 Redis 的环境下组装依赖：
// 入队返回空消息 ID，消费永远拿不到消息。
type NoOpQueue struct{}

var _ Queue = (*NoOpQueue)(nil)

// NewNoOpQueue 创建 NoOpQueue 实例
func NewNoOpQueue() *NoOpQueue { return &NoOpQueue{} }

// Close 关闭队列
func (q *NoOpQueue) Close() error { return nil }

func (q *NoOpQueue) EnqueueGeneration(ctx context.Context, generationID, generatorName string) (string, error) {
	return "", nil
}

func (q *NoOpQueue) CreateConsumerGroup(ctx context.Context) error { return nil }

func (q *NoOpQueue) ConsumeGenerations(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*GenerationMessage, error) {
	return []*GenerationMessage{}, nil
}

func (q *NoOpQueue) AckGeneration(ctx context.Context, messageID string) error { return nil }

func (q *NoOpQueue) GetQueueLength(ctx context.Context) (int64, error) { return 0, nil }

func (q *NoOpQueue) GetPendingCount(ctx context.Context) (int64, error) { return 0, nil }
