// Package cache 易失状态的缓存抽象
//
// 生成进行中的瞬时进度走这里而不落主库，当前实现是 Redis。
package cache

import "context"

// ============================================================================
// 进度缓存
// ============================================================================

// GenerationProgressCache 生成进度缓存接口
//
// Worker 在生成过程中周期性写入进度，API 查询接口读取。
// 进度是易失数据，带 TTL，生成结束后由 Worker 主动删除。
type GenerationProgressCache interface {
	SetGenerationProgress(ctx context.Context, generationID string, progress *GenerationProgress) error
	GetGenerationProgress(ctx context.Context, generationID string) (*GenerationProgress, error)
	DeleteGenerationProgress(ctx context.Context, generationID string) error
}

// ============================================================================
// 后端组合
// ============================================================================

// Cache 缓存后端需要提供的完整能力
type Cache interface {
	GenerationProgressCache
	Close() error
}
