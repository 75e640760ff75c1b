// Package model 定义核心数据模型
//
// generation.go 包含生成记录相关的数据模型定义：
//   - Generation：一次生成请求的持久化记录
//   - GenerationStatus：生成状态枚举
//   - InputArtifact：血缘边（本次生成消费了哪些上游产物）
//   - ArtifactType：产物类型（复用 pkg/generator 的封闭枚举）
package model

import (
	"encoding/json"
	"time"

	"genstudio/pkg/generator"
)

// ArtifactType 产物类型，与 pkg/generator 保持同一枚举
type ArtifactType = generator.ArtifactType

// 枚举值一并转发，存储层和测试不必直接依赖 pkg/generator
const (
	ArtifactTypeImage = generator.ArtifactTypeImage
	ArtifactTypeVideo = generator.ArtifactTypeVideo
	ArtifactTypeAudio = generator.ArtifactTypeAudio
	ArtifactTypeText  = generator.ArtifactTypeText
	ArtifactTypeLoRA  = generator.ArtifactTypeLoRA
	ArtifactTypeModel = generator.ArtifactTypeModel
)

// ============================================================================
// GenerationStatus - 生成状态
// ============================================================================

// GenerationStatus 表示一次生成的状态
//
// 典型生命周期：
//
//	创建 → queued → running → completed/failed/cancelled
//
// 状态说明：
//   - queued：已入库并进入调度队列，等待 worker 领取
//   - running：worker 已领取并开始调用生成器
//   - completed：产物已写入对象存储（引用解析只接受此状态的上游）
//   - failed：生成器调用或产物写入失败
//   - cancelled：排队阶段被用户取消
type GenerationStatus string

const (
	GenerationStatusQueued    GenerationStatus = "queued"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
	GenerationStatusCancelled GenerationStatus = "cancelled"
)

// IsTerminal 状态是否为终态
func (s GenerationStatus) IsTerminal() bool {
	switch s {
	case GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusCancelled:
		return true
	}
	return false
}

// ============================================================================
// InputArtifact - 血缘边
// ============================================================================

// LegacyInputRole 存量数据迁移时血缘边的统一 role
// 旧版扁平引用列表没有字段信息，迁移后的边全部使用此 role
const LegacyInputRole = "input"

// InputArtifact 一条血缘边：本次生成消费了哪个上游生成的产物
//
// 字段说明：
//   - SourceGenerationID：上游生成记录 ID
//   - Role：消费该产物的输入字段名（如 "first_frame"）
//   - ArtifactType：被消费产物的类型（写入时即上游的产物类型）
//
// 血缘在创建时一次写入，之后不可修改、不可删除（append-only）。
// 上游记录被删除后血缘边保留，查询侧把悬空引用当作图边界处理。
type InputArtifact struct {
	SourceGenerationID string       `json:"source_generation_id" bson:"source_generation_id" db:"source_generation_id"` // 上游生成 ID
	Role               string       `json:"role" bson:"role" db:"role"`                                                 // 输入字段名
	ArtifactType       ArtifactType `json:"artifact_type" bson:"artifact_type" db:"artifact_type"`                      // 产物类型
}

// ============================================================================
// Generation - 生成记录
// ============================================================================

// Generation 表示一次生成请求的完整记录
//
// Generation 同时承担两个角色：
//  1. 执行记录：参数、状态、产物位置、错误信息
//  2. 溯源节点：InputArtifacts 记录消费的上游产物，构成 DAG
//
// 字段说明：
//   - ID：唯一标识符，格式如 "gen-abc123def456"
//   - OwnerID：提交者（可见性判定依据；admin 可见全部）
//   - GeneratorName：使用的生成器注册名
//   - Params：用户提交的原始参数（引用字段仍是 generation ID）
//   - ResolvedParams：解析后的参数（引用字段已替换为存储句柄）
//   - InputArtifacts：有序血缘边，顺序 = 字段声明顺序 + 列表内顺序
//   - ParentGenerationID：旧版单亲指针，regenerate 场景继续写入
//   - LegacyInputIDs：旧版扁平引用列表，仅存量数据迁移使用
//   - ArtifactPath：产物在对象存储中的 key
//   - WorkerID：领取执行的 worker
//
// 不变式：InputArtifacts 创建后不再变化；删除某条记录不会改写
// 其他记录的血缘，悬空引用由查询侧容忍。
type Generation struct {
	ID                 string           `json:"id" bson:"_id" db:"id"`                                                                                  // 生成唯一标识
	OwnerID            string           `json:"owner_id" bson:"owner_id" db:"owner_id"`                                                                 // 提交者 ID
	GeneratorName      string           `json:"generator_name" bson:"generator_name" db:"generator_name"`                                               // 生成器注册名
	ArtifactType       ArtifactType     `json:"artifact_type" bson:"artifact_type" db:"artifact_type"`                                                  // 产出的产物类型
	Status             GenerationStatus `json:"status" bson:"status" db:"status"`                                                                       // 生成状态
	Params             json.RawMessage  `json:"params,omitempty" bson:"params,omitempty" db:"params"`                                                   // 原始参数
	ResolvedParams     json.RawMessage  `json:"resolved_params,omitempty" bson:"resolved_params,omitempty" db:"resolved_params"`                        // 解析后参数
	InputArtifacts     []InputArtifact  `json:"input_artifacts" bson:"input_artifacts" db:"-"`                                                          // 有序血缘边
	ParentGenerationID *string          `json:"parent_generation_id,omitempty" bson:"parent_generation_id,omitempty" db:"parent_generation_id"`         // 旧版单亲指针
	LegacyInputIDs     []string         `json:"-" bson:"legacy_input_ids,omitempty" db:"-"`                                                             // 旧版扁平引用列表
	ArtifactPath       *string          `json:"artifact_path,omitempty" bson:"artifact_path,omitempty" db:"artifact_path"`                              // 产物存储 key
	ArtifactSize       *int64           `json:"artifact_size,omitempty" bson:"artifact_size,omitempty" db:"artifact_size"`                              // 产物字节数
	ContentType        *string          `json:"content_type,omitempty" bson:"content_type,omitempty" db:"content_type"`                                 // 产物 MIME 类型
	WorkerID           *string          `json:"worker_id,omitempty" bson:"worker_id,omitempty" db:"worker_id"`                                          // 执行 worker ID
	Error              *string          `json:"error,omitempty" bson:"error,omitempty" db:"error"`                                                      // 错误信息
	CreatedAt          time.Time        `json:"created_at" bson:"created_at" db:"created_at"`                                                           // 创建时间
	UpdatedAt          time.Time        `json:"updated_at" bson:"updated_at" db:"updated_at"`                                                           // 更新时间
	StartedAt          *time.Time       `json:"started_at,omitempty" bson:"started_at,omitempty" db:"started_at"`                                       // 开始执行时间
	FinishedAt         *time.Time       `json:"finished_at,omitempty" bson:"finished_at,omitempty" db:"finished_at"`                                    // 结束时间
}

// VisibleTo 记录对给定调用者是否可见
//
// 规则：admin 可见全部；普通用户只可见自己提交的记录。
// callerID 为空串表示匿名管理通道（认证未启用），视为 admin。
func (g *Generation) VisibleTo(callerID string, isAdmin bool) bool {
	if isAdmin || callerID == "" {
		return true
	}
	return g.OwnerID == callerID
}

// ArtifactReady 产物是否可被下游引用
func (g *Generation) ArtifactReady() bool {
	return g.Status == GenerationStatusCompleted
}
