// Package storagetypes 定义存储层共享数据类型
//
// 独立包，避免循环导入
package storagetypes

import (
	"time"

	"genstudio/internal/shared/model"
)

// ============================================================================
// 查询过滤条件
// ============================================================================

// GenerationFilter 生成记录查询过滤条件
//
// OwnerID 为空串表示不过滤（admin 通道）；Limit<=0 时由仓储层取默认值。
type GenerationFilter struct {
	OwnerID       string                 // 按提交者过滤，空串不过滤
	GeneratorName string                 // 按生成器过滤
	Status        model.GenerationStatus // 按状态过滤
	ArtifactType  model.ArtifactType     // 按产物类型过滤
	CreatedAfter  *time.Time             // 创建时间下界
	CreatedBefore *time.Time             // 创建时间上界
	Limit         int                    // 分页大小
	Offset        int                    // 分页偏移
}

// ============================================================================
// etcd 相关类型
// ============================================================================

// WorkerHeartbeat worker 心跳数据（存储在 etcd，lease 自动过期）
type WorkerHeartbeat struct {
	WorkerID      string    `json:"worker_id"`
	Status        string    `json:"status"`         // idle / busy
	MaxConcurrent int       `json:"max_concurrent"` // 最大并发生成数
	Active        int       `json:"active"`         // 当前执行中的生成数
	Generators    []string  `json:"generators"`     // 本 worker 加载的生成器名
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
