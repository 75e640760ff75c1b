// Package generator 输入 Schema 描述符与产物引用提取
package generator

import "fmt"

// ============================================================================
// FieldSpec - 输入字段描述符
// ============================================================================

// FieldKind 输入字段的种类
type FieldKind string

const (
	// FieldScalar 标量字段（字符串、数值、布尔等），引擎不做校验，原样透传
	FieldScalar FieldKind = "scalar"

	// FieldArtifactRef 单个产物引用，参数值为一个 generation ID
	FieldArtifactRef FieldKind = "artifact_ref"

	// FieldArtifactRefList 产物引用列表，参数值为 generation ID 数组
	FieldArtifactRefList FieldKind = "artifact_ref_list"
)

// FieldSpec 单个输入字段的描述符
//
// 取代运行时反射：每个 Generator 显式列出自己的字段，
// 引用类字段（artifact_ref / artifact_ref_list）必须声明 Ref 类型。
type FieldSpec struct {
	Name     string       `json:"name" yaml:"name"`                                         // 字段名
	Kind     FieldKind    `json:"kind" yaml:"kind"`                                         // 字段种类
	Ref      ArtifactType `json:"ref_artifact_type,omitempty" yaml:"ref_artifact_type,omitempty"` // 引用的产物类型（仅引用类字段）
	Required bool         `json:"required" yaml:"required"`                                 // 是否必填
	Default  interface{}  `json:"default,omitempty" yaml:"default,omitempty"`               // 默认值（仅标量，展示用）
}

// IsRef 是否为产物引用字段
func (f FieldSpec) IsRef() bool {
	return f.Kind == FieldArtifactRef || f.Kind == FieldArtifactRefList
}

// ============================================================================
// Schema 校验
// ============================================================================

// ValidateShape 校验字段描述符列表的结构合法性
//
// 检查项：字段名非空且不重复、Kind 在枚举内、
// 引用类字段必须携带合法的 Ref 类型、标量字段不得携带 Ref。
func ValidateShape(shape []FieldSpec) error {
	seen := make(map[string]bool, len(shape))
	for i, f := range shape {
		if f.Name == "" {
			return fmt.Errorf("field %d: empty name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("field %d: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case FieldScalar:
			if f.Ref != "" {
				return fmt.Errorf("field %q: scalar field must not declare ref_artifact_type", f.Name)
			}
		case FieldArtifactRef, FieldArtifactRefList:
			if !f.Ref.Valid() {
				return fmt.Errorf("field %q: invalid ref_artifact_type %q", f.Name, f.Ref)
			}
			if f.Default != nil {
				return fmt.Errorf("field %q: reference field must not declare a default", f.Name)
			}
		default:
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

// ============================================================================
// 产物引用提取
// ============================================================================

// ArtifactField 从 Schema 中提取出的单个产物引用字段
type ArtifactField struct {
	Name   string       `json:"name"`              // 字段名（血缘记录中的 role）
	Ref    ArtifactType `json:"ref_artifact_type"` // 引用的产物类型
	IsList bool         `json:"is_list"`           // 是否为列表引用
}

// ExtractArtifactFields 提取 Schema 中所有产物引用字段
//
// 返回值保持字段声明顺序（血缘记录顺序依赖于此），标量字段被跳过。
// 纯函数：相同输入永远得到相同输出，不访问任何外部状态。
func ExtractArtifactFields(shape []FieldSpec) []ArtifactField {
	fields := make([]ArtifactField, 0, len(shape))
	for _, f := range shape {
		if !f.IsRef() {
			continue
		}
		fields = append(fields, ArtifactField{
			Name:   f.Name,
			Ref:    f.Ref,
			IsList: f.Kind == FieldArtifactRefList,
		})
	}
	return fields
}
