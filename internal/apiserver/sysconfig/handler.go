// Package sysconfig 运行配置的在线查看与修改
//
// 仅管理员可用。配置在进程启动时一次性加载，
// 保存之后要重启服务才会生效。
package sysconfig

import (
	"encoding/json"
	"log"
	"net/http"

	"genstudio/internal/apiserver/auth"
	"genstudio/internal/config"

	"gopkg.in/yaml.v3"
)

// Handler 配置管理接口
type Handler struct{}

// NewHandler 创建配置管理处理器
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes 注册路由，auth.AdminOnly 拦截非管理员
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/config", auth.AdminOnly(h.GetConfig))
	mux.HandleFunc("PUT /api/v1/config", auth.AdminOnly(h.UpdateConfig))
}

// GetConfig 读取当前配置文件
//
// 密码类字段不落 YAML（只存 .env），文件内容可整体回显。
// parsed 字段是解析后的结构，前端不用自己再解析一遍。
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	data, path, err := config.ReadConfigFile()
	if err != nil {
		writeErr(w, http.StatusNotFound, "Config file not found: "+err.Error())
		return
	}

	var parsed map[string]interface{}
	yaml.Unmarshal(data, &parsed)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_path": path,
		"content":   string(data),
		"parsed":    parsed,
	})
}

// UpdateConfig 整体覆盖配置文件
//
// 只做 YAML 语法校验，字段级别的错误留给下次启动时暴露；
// 改坏了可以再改回来，重启前运行中的服务不受影响。
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if req.Content == "" {
		writeErr(w, http.StatusBadRequest, "Content cannot be empty")
		return
	}

	var parsed map[string]interface{}
	if err := yaml.Unmarshal([]byte(req.Content), &parsed); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid YAML: "+err.Error())
		return
	}

	path, err := config.WriteConfigFile([]byte(req.Content))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "Failed to write config: "+err.Error())
		return
	}
	log.Printf("Config file updated: %s", path)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"file_path": path,
		"message":   "Configuration saved. Restart the service to apply changes.",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
