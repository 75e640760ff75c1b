// Package model 定义核心数据模型
//
// event.go 包含生成生命周期事件的数据模型定义：
//   - GenerationEvent：单条生命周期事件
//   - GenerationEventType：事件类型枚举
package model

import "time"

// ============================================================================
// GenerationEventType - 事件类型
// ============================================================================

// GenerationEventType 生成生命周期事件的类型
//
// 事件分类：
//  1. 生命周期：queued, started, completed, failed, cancelled
//  2. 过程：progress（worker 上报阶段与百分比）
type GenerationEventType string

const (
	// EventGenerationQueued 已入队：提交成功并写入调度队列
	EventGenerationQueued GenerationEventType = "generation_queued"

	// EventGenerationStarted 开始执行：worker 领取并调用生成器
	EventGenerationStarted GenerationEventType = "generation_started"

	// EventGenerationProgress 进度更新
	// Payload: {"stage": "generating", "percent": 45}
	EventGenerationProgress GenerationEventType = "generation_progress"

	// EventGenerationCompleted 执行完成：产物已写入对象存储
	// Payload: {"artifact_path": "...", "artifact_size": 12345}
	EventGenerationCompleted GenerationEventType = "generation_completed"

	// EventGenerationFailed 执行失败
	// Payload: {"error": "..."}
	EventGenerationFailed GenerationEventType = "generation_failed"

	// EventGenerationCancelled 已取消
	EventGenerationCancelled GenerationEventType = "generation_cancelled"
)

// ============================================================================
// GenerationEvent - 生命周期事件
// ============================================================================

// GenerationEvent 单条生成生命周期事件
//
// 事件写入 Redis Streams（按 generation ID 分流），供轮询接口与
// WebSocket 推送消费；不落库，流长度有上限，仅用于过程观测。
type GenerationEvent struct {
	ID           string                 `json:"id"`            // Stream 消息 ID
	GenerationID string                 `json:"generation_id"` // 所属生成记录
	Type         GenerationEventType    `json:"type"`          // 事件类型
	Timestamp    time.Time              `json:"timestamp"`     // 发生时间
	Payload      map[string]interface{} `json:"payload,omitempty"`
}
