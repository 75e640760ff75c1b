// Package queue 调度消息与 stream 约定
package queue

import "time"

// ============================================================================
// 调度消息
// ============================================================================

// GenerationMessage 生成调度消息
//
// GeneratorName 随消息冗余一份，worker 无需回查数据库即可判断
// 自己是否加载了对应的生成器。
type GenerationMessage struct {
	ID            string
	GenerationID  string
	GeneratorName string
	CreatedAt     time.Time
}

// ============================================================================
// stream 与消费者组
// ============================================================================

const (
	// 存放待执行生成记录的 stream
	KeyGenerationQueue = "genstudio:queue:generations"

	// worker 共用的消费者组名
	WorkerConsumerGroup = "workers"
)
