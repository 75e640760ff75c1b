// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"

	"genstudio/internal/shared/model"
)

// NoOpEventBus 全空操作的 EventBus 实现
//
// 订阅返回已关闭的 channel，WebSocket 网关会立即结束转发循环。
type NoOpEventBus struct{}

var _ EventBus = (*NoOpEventBus)(nil)

// NewNoOpEventBus 创建 NoOpEventBus 实例
func NewNoOpEventBus() *NoOpEventBus { return &NoOpEventBus{} }

// Close 关闭事件总线
func (e *NoOpEventBus) Close() error { return nil }

func (e *NoOpEventBus) PublishGenerationEvent(ctx context.Context, generationID string, event *model.GenerationEvent) error {
	return nil
}

func (e *NoOpEventBus) GetGenerationEvents(ctx context.Context, generationID string, fromID string, count int64) ([]*model.GenerationEvent, error) {
	return []*model.GenerationEvent{}, nil
}

func (e *NoOpEventBus) GetGenerationEventCount(ctx context.Context, generationID string) (int64, error) {
	return 0, nil
}

func (e *NoOpEventBus) SubscribeGenerationEvents(ctx context.Context, generationID string) (<-chan *model.GenerationEvent, error) {
	ch := make(chan *model.GenerationEvent)
	close(ch)
	return ch, nil
}

func (e *NoOpEventBus) DeleteGenerationEvents(ctx context.Context, generationID string) error {
	return nil
}
