// Package server OpenAPI 规范加载与文档页
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"genstudio/api"
)

// specPath 嵌入文件系统中的规范路径
const specPath = "openapi/openapi.yaml"

// LoadSpec 解析并校验嵌入的 OpenAPI 规范
//
// 服务启动时调用一次，规范文件的语法错误或悬空引用在启动期
// 暴露，而不是等到客户端拉取文档时才发现。
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	data, err := api.OpenAPIFS.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("read embedded spec: %w", err)
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate spec: %w", err)
	}
	return doc, nil
}

// OpenAPISpec 返回 OpenAPI 规范原文
//
// 路由: GET /api/v1/openapi
func (h *Handler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	data, err := api.OpenAPIFS.ReadFile(specPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "spec not available")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// Docs 返回交互式 API 文档页
//
// 路由: GET /api/v1/docs
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	data, err := api.DocsFS.ReadFile("docs/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "docs not available")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}
