// Package generation 生成领域 - HTTP 处理
//
// 文件组织：
//   - handler.go: Handler 定义、路由注册、查询类接口
//   - submit.go: 提交 / 取消 / 重新生成（写路径）
//   - graph.go: 血缘图查询（ancestry / descendants / children）
//   - artifact.go: 产物下载、事件轮询、进度查询
//   - util.go: 包内工具函数
package generation

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"genstudio/internal/lineage"
	"genstudio/internal/resolve"
	"genstudio/internal/shared/cache"
	"genstudio/internal/shared/eventbus"
	"genstudio/internal/shared/model"
	"genstudio/internal/shared/queue"
	"genstudio/internal/shared/storage"
	"genstudio/pkg/generator"
)

// ObjectStore 产物对象存储的最小接口（由 objstore.Client 实现）
type ObjectStore interface {
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Handler 生成领域 HTTP 处理器
type Handler struct {
	store    storage.GenerationStore // 使用接口类型
	registry *generator.Registry
	engine   *resolve.Engine
	graph    *lineage.Resolver
	queue    queue.GenerationQueue
	events   eventbus.GenerationEventBus

	// 可选依赖，未设置时相关接口降级
	progress cache.GenerationProgressCache
	objects  ObjectStore
}

// NewHandler 创建生成处理器
func NewHandler(store storage.GenerationStore, registry *generator.Registry, engine *resolve.Engine, graph *lineage.Resolver, q queue.GenerationQueue, events eventbus.GenerationEventBus) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
		engine:   engine,
		graph:    graph,
		queue:    q,
		events:   events,
	}
}

// SetProgressCache 设置进度缓存（未设置时进度接口返回 404）
func (h *Handler) SetProgressCache(p cache.GenerationProgressCache) {
	h.progress = p
}

// SetObjectStore 设置对象存储（未设置时产物接口直接返回存储路径）
func (h *Handler) SetObjectStore(o ObjectStore) {
	h.objects = o
}

// RegisterRoutes 注册生成相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/generations", h.List)
	mux.HandleFunc("POST /api/v1/generations", h.Submit)
	mux.HandleFunc("GET /api/v1/generations/{id}", h.Get)
	mux.HandleFunc("DELETE /api/v1/generations/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/generations/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/v1/generations/{id}/regenerate", h.Regenerate)
	mux.HandleFunc("GET /api/v1/generations/{id}/ancestry", h.Ancestry)
	mux.HandleFunc("GET /api/v1/generations/{id}/descendants", h.Descendants)
	mux.HandleFunc("GET /api/v1/generations/{id}/children", h.Children)
	mux.HandleFunc("GET /api/v1/generations/{id}/artifact", h.Artifact)
	mux.HandleFunc("GET /api/v1/generations/{id}/events", h.Events)
	mux.HandleFunc("GET /api/v1/generations/{id}/progress", h.Progress)
}

// ============================================================================
// 查询接口
// ============================================================================

// Get 获取生成记录详情
// GET /api/v1/generations/{id}
//
// 响应包含完整血缘边（input_artifacts）与旧版单亲指针
// （parent_generation_id）。不存在与不可见统一返回 404。
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, gen)
}

// List 列出生成记录
// GET /api/v1/generations
//
// 支持的查询参数：
//   - status:        按状态筛选
//   - generator:     按生成器筛选
//   - artifact_type: 按产物类型筛选
//   - since / until: 创建时间区间 (ISO8601)
//   - limit:         每页条数 (默认 20, 最大 100)
//   - offset:        偏移量
//
// 普通用户只能看到自己提交的记录；admin 可用 owner 参数按提交者筛选。
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	filter := storage.GenerationFilter{
		GeneratorName: r.URL.Query().Get("generator"),
		Status:        model.GenerationStatus(r.URL.Query().Get("status")),
		ArtifactType:  model.ArtifactType(r.URL.Query().Get("artifact_type")),
		Limit:         limit,
		Offset:        offset,
	}
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.CreatedAfter = &t
		}
	}
	if u := r.URL.Query().Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filter.CreatedBefore = &t
		}
	}

	// 可见性：普通用户强制只查本人，admin 可指定 owner
	caller := callerFrom(r)
	if caller.Admin {
		filter.OwnerID = r.URL.Query().Get("owner")
	} else {
		filter.OwnerID = caller.UserID
	}

	gens, total, err := h.store.ListGenerations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list generations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generations": gens,
		"count":       len(gens),
		"total":       total,
		"has_more":    offset+len(gens) < total,
	})
}

// visibleGeneration 读取路径参数指定的记录并做可见性判定
//
// 不存在、读取失败、不可见分别写入 404/500/404 响应；
// 返回 ok=false 时响应已写出，调用方直接 return。
func (h *Handler) visibleGeneration(w http.ResponseWriter, r *http.Request) (*model.Generation, bool) {
	id := r.PathValue("id")
	gen, err := h.store.GetGeneration(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get generation")
		return nil, false
	}
	// 不存在与不可见同样返回 404，不泄露记录是否存在
	if gen == nil || !callerFrom(r).CanSee(gen) {
		writeError(w, http.StatusNotFound, "generation not found")
		return nil, false
	}
	return gen, true
}
