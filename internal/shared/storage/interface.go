// Package storage 持久化存储层的抽象接口
//
// 调用方只依赖这里的接口，具体实现经依赖注入传入：
// repository/（SQL 两方言共用）、mongostore/（MongoDB）、
// etcd/（worker 心跳）。
//
// 缓存、事件总线、队列各自成包（cache/ eventbus/ queue/），不在本包范围。
package storage

import (
	"context"
	"encoding/json"
	"time"

	"genstudio/internal/shared/model"
	"genstudio/internal/shared/storagetypes"
)

// ============================================================================
// 类型重导出（避免循环导入）
// ============================================================================

// GenerationFilter 生成记录查询过滤条件
type GenerationFilter = storagetypes.GenerationFilter

// WorkerHeartbeat worker 心跳数据（etcd）
type WorkerHeartbeat = storagetypes.WorkerHeartbeat

// ============================================================================
// 持久化存储接口（由 repository.Store / mongostore.Store 实现）
// ============================================================================

// GenerationStore 生成记录（溯源图节点）存储接口
//
// 血缘不变式：CreateGeneration 原子写入记录与全部血缘边，
// 此后没有任何接口可以修改或删除单条血缘边（append-only）。
// DeleteGeneration 删除记录本身及其出边；指向它的入边保留，
// 查询侧把悬空引用当作图边界。
type GenerationStore interface {
	CreateGeneration(ctx context.Context, gen *model.Generation) error
	GetGeneration(ctx context.Context, id string) (*model.Generation, error)
	ListGenerations(ctx context.Context, filter GenerationFilter) ([]*model.Generation, int, error)

	// FindByLineageContains 查询血缘中引用了 sourceGenerationID 的全部记录
	// 实现必须走二级索引（source_generation_id），不允许全表扫描
	FindByLineageContains(ctx context.Context, sourceGenerationID string) ([]*model.Generation, error)

	// ListGenerationsByParent 旧版单亲指针的正向查询（children 列表）
	ListGenerationsByParent(ctx context.Context, parentID string) ([]*model.Generation, error)

	UpdateGenerationStatus(ctx context.Context, id string, status model.GenerationStatus, workerID *string, errMsg *string) error
	UpdateGenerationArtifact(ctx context.Context, id string, artifactPath string, artifactSize int64, contentType string) error
	UpdateGenerationResolvedParams(ctx context.Context, id string, resolved json.RawMessage) error
	DeleteGeneration(ctx context.Context, id string) error

	// ListStaleQueuedGenerations 入队超过 threshold 仍未被领取的记录（兜底重派）
	ListStaleQueuedGenerations(ctx context.Context, threshold time.Duration) ([]*model.Generation, error)

	// BackfillLegacyLineage 把旧版扁平引用列表迁移为带 role 的血缘边
	// 幂等：已有血缘边的记录跳过；返回迁移的记录数
	BackfillLegacyLineage(ctx context.Context) (int, error)
}

// UserStore 账号的增查改
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// ============================================================================
// etcd 心跳接口（由 etcd.Store 实现）
// ============================================================================

// WorkerHeartbeatStore worker 心跳接口
type WorkerHeartbeatStore interface {
	UpdateWorkerHeartbeat(ctx context.Context, hb *WorkerHeartbeat) error
	GetWorkerHeartbeat(ctx context.Context, workerID string) (*WorkerHeartbeat, error)
	ListWorkerHeartbeats(ctx context.Context) ([]*WorkerHeartbeat, error)
	IsWorkerOnline(ctx context.Context, workerID string) bool
}

// ============================================================================
// 组合接口
// ============================================================================

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	GenerationStore
	UserStore
	Close() error
}
