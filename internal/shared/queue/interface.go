// Package queue 生成任务的调度队列抽象
//
// 入队与消费隔在接口后面，当前由 Redis Streams 承载。
package queue

import (
	"context"
	"time"
)

// ============================================================================
// 调度队列
// ============================================================================

// GenerationQueue 生成调度队列接口
//
// api-server 入队，worker 通过消费者组领取；消息处理完成后必须 Ack，
// 未 Ack 的消息留在 pending 列表里，可被监控和重新投递。
type GenerationQueue interface {
	// EnqueueGeneration 将生成记录加入调度队列（等待 worker 领取）
	EnqueueGeneration(ctx context.Context, generationID, generatorName string) (string, error)
	CreateConsumerGroup(ctx context.Context) error
	ConsumeGenerations(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*GenerationMessage, error)
	AckGeneration(ctx context.Context, messageID string) error
	GetQueueLength(ctx context.Context) (int64, error)
	GetPendingCount(ctx context.Context) (int64, error)
}

// ============================================================================
// 后端组合
// ============================================================================

// Queue 队列后端完整能力，含连接生命周期
type Queue interface {
	GenerationQueue
	Close() error
}
