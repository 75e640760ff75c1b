// Package cache 缓存条目与 key 约定
package cache

import "time"

// ============================================================================
// 进度条目
// ============================================================================

// GenerationProgress 生成过程进度
type GenerationProgress struct {
	Stage     string    `json:"stage" redis:"stage"`
	Percent   int       `json:"percent" redis:"percent"`
	Message   string    `json:"message,omitempty" redis:"message"`
	UpdatedAt time.Time `json:"updated_at" redis:"updated_at"`
}

// ============================================================================
// key 与 TTL 约定
// ============================================================================

const (
	// key 前缀，后接 generation id
	KeyGenerationProgress = "genstudio:progress:"

	// 写入后的存活时长，生成结束时 worker 会主动删除
	TTLGenerationProgress = 1 * time.Hour
)
