// Package resolve 解析错误类型定义
//
// 全部为用户侧错误：提交请求时同步返回，不重试、不入库。
// API 层用 errors.Is / errors.As 区分类型并映射 HTTP 状态码。
package resolve

import (
	"errors"
	"fmt"

	"genstudio/internal/shared/model"
	"genstudio/pkg/generator"
)

// ErrUnknownGenerator 生成器未注册
//
// 用 fmt.Errorf("%w: %q", ErrUnknownGenerator, name) 包装后返回，
// errors.Is 可识别。
var ErrUnknownGenerator = errors.New("unknown generator")

// ReferenceNotFoundError 引用的生成记录不存在或调用方不可见
//
// 两种情况刻意合并为同一错误：不可见的记录对调用方而言等同于不存在，
// 错误信息不泄露记录是否真实存在。
type ReferenceNotFoundError struct {
	Field string // 引用字段名（即血缘 role）
	ID    string // 被引用的生成 ID
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("field %q: referenced generation %q not found", e.Field, e.ID)
}

// ArtifactTypeMismatchError 被引用记录的产物类型与字段声明不符
type ArtifactTypeMismatchError struct {
	Field string
	ID    string
	Want  generator.ArtifactType // 字段声明的类型
	Got   generator.ArtifactType // 被引用记录的实际类型
}

func (e *ArtifactTypeMismatchError) Error() string {
	return fmt.Sprintf("field %q: generation %q produces %s, expected %s",
		e.Field, e.ID, e.Got, e.Want)
}

// ArtifactNotReadyError 被引用记录未处于成功终态，产物尚不可用
type ArtifactNotReadyError struct {
	Field  string
	ID     string
	Status model.GenerationStatus // 被引用记录的当前状态
}

func (e *ArtifactNotReadyError) Error() string {
	return fmt.Sprintf("field %q: generation %q is %s, artifact not ready",
		e.Field, e.ID, e.Status)
}

// ReferenceRequiredError 必填引用字段缺失（或必填列表为空）
type ReferenceRequiredError struct {
	Field string
}

func (e *ReferenceRequiredError) Error() string {
	return fmt.Sprintf("field %q: required artifact reference missing", e.Field)
}

// ReferenceValueError 引用字段的参数值不是合法的 generation ID（或 ID 数组）
type ReferenceValueError struct {
	Field  string
	Reason string
}

func (e *ReferenceValueError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}
