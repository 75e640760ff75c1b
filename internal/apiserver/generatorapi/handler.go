// Package generatorapi 生成器目录 - HTTP 处理
//
// 只读接口：注册表在进程启动阶段一次构建，这里只做查找与序列化。
// 客户端用 Schema 接口发现输入字段（哪些是标量、哪些引用已有产物），
// 据此构建提交表单并在提交前做本地校验。
package generatorapi

import (
	"encoding/json"
	"net/http"

	"genstudio/pkg/generator"
)

// Handler 生成器目录 HTTP 处理器
type Handler struct {
	registry *generator.Registry
}

// NewHandler 创建生成器目录处理器
func NewHandler(registry *generator.Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes 注册生成器目录路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/generators", h.List)
	mux.HandleFunc("GET /api/v1/generators/{name}", h.Get)
	mux.HandleFunc("GET /api/v1/generators/{name}/schema", h.Schema)
}

// summary 列表项
type summary struct {
	Name         string                 `json:"name"`
	ArtifactType generator.ArtifactType `json:"artifact_type"`
	Origin       string                 `json:"origin"`
}

// List 列出已加载的生成器
// GET /api/v1/generators
//
// 顺序与注册顺序（声明顺序）一致。
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.registry.All()
	items := make([]summary, 0, len(entries))
	for _, e := range entries {
		items = append(items, summary{
			Name:         e.Name,
			ArtifactType: e.Generator.ArtifactType(),
			Origin:       e.Origin,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generators": items,
		"count":      len(items),
	})
}

// Get 获取单个生成器详情
// GET /api/v1/generators/{name}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.registry.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "generator not found")
		return
	}

	resp := map[string]interface{}{
		"name":          entry.Name,
		"artifact_type": entry.Generator.ArtifactType(),
		"origin":        entry.Origin,
		"fields":        entry.Generator.InputShape(),
	}
	if len(entry.InputDefaults) > 0 {
		resp["input_defaults"] = entry.InputDefaults
	}
	writeJSON(w, http.StatusOK, resp)
}

// Schema 获取生成器的输入 Schema
// GET /api/v1/generators/{name}/schema
//
// 响应字段：
//   - fields:          输入字段描述符（声明顺序，即血缘记录顺序）
//   - artifact_fields: 其中的产物引用字段（提交前客户端可据此校验引用）
//   - input_defaults:  声明携带的建议默认值，服务端从不代入参数
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.registry.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "generator not found")
		return
	}

	shape := entry.Generator.InputShape()
	resp := map[string]interface{}{
		"generator":       entry.Name,
		"artifact_type":   entry.Generator.ArtifactType(),
		"fields":          shape,
		"artifact_fields": generator.ExtractArtifactFields(shape),
	}
	if len(entry.InputDefaults) > 0 {
		resp["input_defaults"] = entry.InputDefaults
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON 输出 JSON 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 输出 {"error": message} 形式的错误
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
