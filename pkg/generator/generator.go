// Package generator 定义生成器接口、输入 Schema 和注册加载机制
//
// Generator 是生成能力的适配层，负责：
//   - 声明自身的输入 Schema（哪些字段是标量、哪些字段引用已有产物）
//   - 将解析后的参数转换为对外部 Provider 的一次生成调用
//   - 返回生成产物的字节与元信息
//
// 设计原则：
//   - 每种生成能力（flux-pro、veo31-text-to-video 等）实现一个 Generator
//   - 输入 Schema 用显式字段描述符表达，不做运行时反射
//   - 注册表在进程启动阶段一次构建，构建完成后只读
//
// 架构关系：
//
//	配置声明（generators.yaml）
//	       │
//	       ▼  generator.Load()
//	  只读 Registry（name → Generator + 声明元数据）
//	       │
//	       ▼  resolve.Engine（产物引用解析 → 血缘）
//	  resolved params + lineage
//	       │
//	       ▼  worker 调用 Generator.Generate()
//	  产物字节 → 对象存储
//
// 文件组织：
//   - generator.go: Generator 接口、ArtifactType、Request/Result
//   - schema.go: 输入字段描述符与产物引用提取
//   - registry.go: 只读注册表
//   - loader.go: 声明驱动的加载器（source / type_path / plugin_entry 三种机制）
//   - plugins.go: 进程级注册表（source hook、type factory、plugin index、announce）
package generator

import "context"

// ============================================================================
// ArtifactType - 产物类型
// ============================================================================

// ArtifactType 生成产物的类型枚举
//
// 封闭枚举：血缘边、存储行和 Schema 中的引用类型都只允许这些值。
type ArtifactType string

const (
	ArtifactTypeImage ArtifactType = "image"
	ArtifactTypeVideo ArtifactType = "video"
	ArtifactTypeAudio ArtifactType = "audio"
	ArtifactTypeText  ArtifactType = "text"
	ArtifactTypeLoRA  ArtifactType = "lora"
	ArtifactTypeModel ArtifactType = "model"
)

// Valid 检查产物类型是否在枚举范围内
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactTypeImage, ArtifactTypeVideo, ArtifactTypeAudio,
		ArtifactTypeText, ArtifactTypeLoRA, ArtifactTypeModel:
		return true
	}
	return false
}

// ============================================================================
// Generator 接口
// ============================================================================

// Generator 是单个生成能力的适配接口
//
// 实现注意事项：
//   - Name() 返回默认注册名，如 "flux-pro"；声明中的 name 覆盖时以声明为准
//   - ArtifactType() 返回该生成器产出的产物类型，必须在枚举范围内
//   - InputShape() 返回的字段顺序即血缘记录顺序，实现必须保证稳定
//   - Generate() 收到的 params 中，产物引用字段已被替换为具体存储句柄
//   - Generator 是无状态的，进程内同一实例会被并发调用
type Generator interface {
	// Name 返回默认注册名
	Name() string

	// ArtifactType 返回产出的产物类型
	ArtifactType() ArtifactType

	// InputShape 返回输入字段描述符（顺序稳定）
	InputShape() []FieldSpec

	// Generate 执行一次生成调用
	// ctx 用于取消与超时控制
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// ============================================================================
// Request / Result
// ============================================================================

// ProgressFunc 生成过程中的进度回调
// stage 为阶段描述，percent 取值 0-100
type ProgressFunc func(stage string, percent int)

// Request 一次生成调用的输入
type Request struct {
	// GenerationID 本次生成的记录 ID，用于日志与产物命名
	GenerationID string

	// Params 解析后的参数：标量原样透传，产物引用字段已替换为存储句柄
	Params map[string]interface{}

	// Report 进度回调，可为 nil
	Report ProgressFunc
}

// Result 一次生成调用的产出
type Result struct {
	// Data 产物字节，由调用方负责写入对象存储
	Data []byte

	// ContentType 产物 MIME 类型，如 "image/png"
	ContentType string

	// FileExt 产物文件扩展名（不含点），如 "png"、"mp4"
	FileExt string
}

// Progress 安全地上报进度，Report 为 nil 时忽略
func (r *Request) Progress(stage string, percent int) {
	if r.Report != nil {
		r.Report(stage, percent)
	}
}
