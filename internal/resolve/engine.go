// Package resolve 产物引用解析引擎
//
// 提交生成请求时，把参数中的产物引用字段（值为上游 generation ID）
// 替换为可直接使用的产物句柄，同时产出有序血缘边。流程：
//
//	注册表查 Schema → 按字段声明顺序遍历引用字段 →
//	每个引用 ID 恰好一次存储读取 + 一次可见性判定 →
//	校验（存在、可见、类型匹配、成功终态）→ 句柄替换 + 血缘记录
//
// 解析发生在任何持久化和入队之前：任一引用失败，整次提交失败，
// 不产生半成品记录。
package resolve

import (
	"context"
	"fmt"

	"genstudio/internal/shared/model"
	"genstudio/pkg/generator"
)

// ============================================================================
// 依赖接口
// ============================================================================

// Store 解析引擎需要的最小存储面
type Store interface {
	GetGeneration(ctx context.Context, id string) (*model.Generation, error)
}

// Authorizer 可见性判定
//
// 每个被引用的 generation 恰好判定一次。
type Authorizer interface {
	CanSee(caller model.Caller, gen *model.Generation) bool
}

// OwnershipAuthorizer 默认可见性规则：admin 全可见，用户只可见本人记录
type OwnershipAuthorizer struct{}

func (OwnershipAuthorizer) CanSee(caller model.Caller, gen *model.Generation) bool {
	return caller.CanSee(gen)
}

// ArtifactHandleFunc 把成功终态记录的产物换成调用侧可用的句柄
//
// 接入对象存储时返回限时下载 URL，否则返回存储路径。
type ArtifactHandleFunc func(ctx context.Context, gen *model.Generation) (string, error)

// PathHandle 缺省句柄策略：直接使用产物存储路径
func PathHandle(_ context.Context, gen *model.Generation) (string, error) {
	if gen.ArtifactPath == nil || *gen.ArtifactPath == "" {
		return "", fmt.Errorf("generation %s has no artifact path", gen.ID)
	}
	return *gen.ArtifactPath, nil
}

// ============================================================================
// Engine
// ============================================================================

// Engine 产物引用解析引擎
type Engine struct {
	registry *generator.Registry
	store    Store
	auth     Authorizer
	handle   ArtifactHandleFunc
}

// NewEngine 创建解析引擎
//
// auth 为 nil 时使用 OwnershipAuthorizer；handle 为 nil 时使用 PathHandle。
func NewEngine(registry *generator.Registry, store Store, auth Authorizer, handle ArtifactHandleFunc) *Engine {
	if auth == nil {
		auth = OwnershipAuthorizer{}
	}
	if handle == nil {
		handle = PathHandle
	}
	return &Engine{
		registry: registry,
		store:    store,
		auth:     auth,
		handle:   handle,
	}
}

// Resolve 解析一次提交的参数
//
// 返回解析后的参数副本与有序血缘边。标量字段与未声明的
// 顶层参数原样透传（生成器可能接受 Provider 特有的自定义项），
// 只有引用字段被校验和替换。
func (e *Engine) Resolve(ctx context.Context, generatorName string, params map[string]interface{}, caller model.Caller) (map[string]interface{}, []model.InputArtifact, error) {
	entry, ok := e.registry.Get(generatorName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, generatorName)
	}

	shape := entry.Generator.InputShape()
	required := make(map[string]bool)
	for _, f := range shape {
		if f.IsRef() && f.Required {
			required[f.Name] = true
		}
	}

	resolved := make(map[string]interface{}, len(params))
	for k, v := range params {
		resolved[k] = v
	}

	var lineage []model.InputArtifact
	for _, field := range generator.ExtractArtifactFields(shape) {
		raw, present := params[field.Name]
		if !present || raw == nil {
			if required[field.Name] {
				return nil, nil, &ReferenceRequiredError{Field: field.Name}
			}
			continue
		}

		if field.IsList {
			ids, err := refIDList(field.Name, raw)
			if err != nil {
				return nil, nil, err
			}
			if len(ids) == 0 && required[field.Name] {
				return nil, nil, &ReferenceRequiredError{Field: field.Name}
			}
			handles := make([]string, 0, len(ids))
			for _, id := range ids {
				handle, edge, err := e.resolveOne(ctx, field, id, caller)
				if err != nil {
					return nil, nil, err
				}
				handles = append(handles, handle)
				lineage = append(lineage, edge)
			}
			resolved[field.Name] = handles
		} else {
			id, err := refID(field.Name, raw)
			if err != nil {
				return nil, nil, err
			}
			handle, edge, err := e.resolveOne(ctx, field, id, caller)
			if err != nil {
				return nil, nil, err
			}
			resolved[field.Name] = handle
			lineage = append(lineage, edge)
		}
	}

	return resolved, lineage, nil
}

// resolveOne 解析单个引用：恰好一次存储读取 + 一次可见性判定
func (e *Engine) resolveOne(ctx context.Context, field generator.ArtifactField, id string, caller model.Caller) (string, model.InputArtifact, error) {
	gen, err := e.store.GetGeneration(ctx, id)
	if err != nil {
		return "", model.InputArtifact{}, fmt.Errorf("fetch referenced generation %s: %w", id, err)
	}
	// 不存在与不可见返回同一错误，避免泄露记录是否存在
	if gen == nil {
		return "", model.InputArtifact{}, &ReferenceNotFoundError{Field: field.Name, ID: id}
	}
	if !e.auth.CanSee(caller, gen) {
		return "", model.InputArtifact{}, &ReferenceNotFoundError{Field: field.Name, ID: id}
	}
	if gen.ArtifactType != field.Ref {
		return "", model.InputArtifact{}, &ArtifactTypeMismatchError{
			Field: field.Name,
			ID:    id,
			Want:  field.Ref,
			Got:   gen.ArtifactType,
		}
	}
	if !gen.ArtifactReady() {
		return "", model.InputArtifact{}, &ArtifactNotReadyError{
			Field:  field.Name,
			ID:     id,
			Status: gen.Status,
		}
	}

	handle, err := e.handle(ctx, gen)
	if err != nil {
		return "", model.InputArtifact{}, fmt.Errorf("artifact handle for %s: %w", id, err)
	}

	return handle, model.InputArtifact{
		SourceGenerationID: id,
		Role:               field.Name,
		ArtifactType:       gen.ArtifactType,
	}, nil
}

// ============================================================================
// 参数值解析
// ============================================================================

func refID(field string, raw interface{}) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", &ReferenceValueError{
			Field:  field,
			Reason: fmt.Sprintf("expected generation id string, got %T", raw),
		}
	}
	if s == "" {
		return "", &ReferenceValueError{Field: field, Reason: "empty generation id"}
	}
	return s, nil
}

func refIDList(field string, raw interface{}) ([]string, error) {
	switch list := raw.(type) {
	case []interface{}:
		ids := make([]string, 0, len(list))
		for i, el := range list {
			s, ok := el.(string)
			if !ok {
				return nil, &ReferenceValueError{
					Field:  field,
					Reason: fmt.Sprintf("element %d: expected generation id string, got %T", i, el),
				}
			}
			if s == "" {
				return nil, &ReferenceValueError{
					Field:  field,
					Reason: fmt.Sprintf("element %d: empty generation id", i),
				}
			}
			ids = append(ids, s)
		}
		return ids, nil
	case []string:
		for i, s := range list {
			if s == "" {
				return nil, &ReferenceValueError{
					Field:  field,
					Reason: fmt.Sprintf("element %d: empty generation id", i),
				}
			}
		}
		return list, nil
	default:
		return nil, &ReferenceValueError{
			Field:  field,
			Reason: fmt.Sprintf("expected array of generation ids, got %T", raw),
		}
	}
}
