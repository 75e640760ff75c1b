// Package workeradmin worker 运维视图 - HTTP 处理
//
// 只读接口：worker 心跳存在 etcd（lease 自动过期，下线即消失），
// 队列深度来自 Redis Streams。用于运维观察生成池的容量与堆积。
package workeradmin

import (
	"encoding/json"
	"net/http"

	"genstudio/internal/shared/queue"
	"genstudio/internal/shared/storage"
)

// Handler worker 运维视图 HTTP 处理器
type Handler struct {
	heartbeats storage.WorkerHeartbeatStore // 使用接口类型
	queue      queue.GenerationQueue
}

// NewHandler 创建 worker 运维处理器
//
// heartbeats 为 nil（未接入 etcd）时 worker 列表为空、详情一律 404；
// 队列统计不受影响。
func NewHandler(heartbeats storage.WorkerHeartbeatStore, q queue.GenerationQueue) *Handler {
	return &Handler{heartbeats: heartbeats, queue: q}
}

// RegisterRoutes 注册 worker 运维路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/workers", h.List)
	mux.HandleFunc("GET /api/v1/workers/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/queue/stats", h.QueueStats)
}

// List 列出在线 worker
// GET /api/v1/workers
//
// 心跳随 etcd lease 过期，列表中的 worker 即在线 worker。
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.heartbeats == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"workers": []*storage.WorkerHeartbeat{},
			"count":   0,
		})
		return
	}

	workers, err := h.heartbeats.ListWorkerHeartbeats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// Get 获取单个 worker 的心跳详情
// GET /api/v1/workers/{id}
//
// 心跳已过期（worker 下线）与从未注册都返回 404。
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.heartbeats == nil {
		writeError(w, http.StatusNotFound, "worker not found")
		return
	}

	hb, err := h.heartbeats.GetWorkerHeartbeat(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}
	if hb == nil {
		writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	writeJSON(w, http.StatusOK, hb)
}

// QueueStats 查询调度队列统计
// GET /api/v1/queue/stats
//
// 响应字段：
//   - queue_length: 流中待投递的消息数
//   - pending:      已被 worker 领取但尚未 Ack 的消息数
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	length, err := h.queue.GetQueueLength(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get queue length")
		return
	}
	pending, err := h.queue.GetPendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get pending count")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue_length": length,
		"pending":      pending,
	})
}

// writeJSON 序列化响应体并设置状态码
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 错误响应走 {"error": message} 信封
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
