// Package cache 缓存层 mock 实现
package cache

import (
	"context"
)

// NoOpCache 全空操作的 Cache 实现
//
// 进度读取固定返回 (nil, nil)，调用方按"没有进度"处理。
type NoOpCache struct{}

var _ Cache = (*NoOpCache)(nil)

// NewNoOpCache 创建 NoOpCache 实例
func NewNoOpCache() *NoOpCache { return &NoOpCache{} }

// Close 关闭缓存
func (c *NoOpCache) Close() error { return nil }

func (c *NoOpCache) SetGenerationProgress(ctx context.Context, generationID string, progress *GenerationProgress) error {
	return nil
}

func (c *NoOpCache) GetGenerationProgress(ctx context.Context, generationID string) (*GenerationProgress, error) {
	return nil, nil
}

func (c *NoOpCache) DeleteGenerationProgress(ctx context.Context, generationID string) error {
	return nil
}
