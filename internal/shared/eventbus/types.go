// Package eventbus 事件总线类型定义
package eventbus

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyGenerationEvents 生成事件流 Key 前缀（加 generation ID）
	KeyGenerationEvents = "genstudio:events:"

	// MaxStreamLength Stream 最大长度
	MaxStreamLength = 1000
)
