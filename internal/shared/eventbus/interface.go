// Package eventbus 事件总线抽象接口
//
// 提供生成生命周期事件的发布/订阅能力，当前由 Redis Streams 实现。
package eventbus

import (
	"context"

	"genstudio/internal/shared/model"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// GenerationEventBus 生成事件总线接口
type GenerationEventBus interface {
	PublishGenerationEvent(ctx context.Context, generationID string, event *model.GenerationEvent) error
	GetGenerationEvents(ctx context.Context, generationID string, fromID string, count int64) ([]*model.GenerationEvent, error)
	GetGenerationEventCount(ctx context.Context, generationID string) (int64, error)
	SubscribeGenerationEvents(ctx context.Context, generationID string) (<-chan *model.GenerationEvent, error)
	DeleteGenerationEvents(ctx context.Context, generationID string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// EventBus 事件总线组合接口
type EventBus interface {
	GenerationEventBus
	Close() error
}
