// Package server 提供 API 服务的装配层
//
// 领域 HTTP 处理器已拆分到独立包（generation / generatorapi /
// workeradmin / auth），本包保留跨领域的基础设施：
//   - common.go:  Handler 装配、依赖注入、通用工具函数
//   - handler.go: 路由配置与中间件链
//   - metrics.go: Prometheus 指标
//   - events.go:  WebSocket 事件网关
//   - openapi.go: OpenAPI 规范加载与文档页
//   - requeue.go: 滞留任务补偿循环
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"genstudio/internal/apiserver/auth"
	"genstudio/internal/apiserver/generation"
	"genstudio/internal/lineage"
	"genstudio/internal/resolve"
	"genstudio/internal/shared/cache"
	"genstudio/internal/shared/eventbus"
	"genstudio/internal/shared/model"
	"genstudio/internal/shared/queue"
	"genstudio/internal/shared/storage"
	"genstudio/pkg/generator"
)

// handleExpiry 解析阶段签发的产物句柄有效期
//
// 句柄随 resolved_params 持久化并要跨越任务排队等待时间，
// 因此远长于下载接口的短时签名。
const handleExpiry = 24 * time.Hour

// Handler API 服务装配器
//
// Handler 持有全部后端依赖，负责：
//   - 构建引用解析引擎与血缘遍历器
//   - 将依赖注入各领域处理器并组装路由
//   - 管理事件网关与指标
//
// 依赖接口说明（接口隔离原则）：
//   - queue: 生成任务调度队列（Redis Streams）
//   - events: 生成事件总线（WebSocket 推送与事件轮询）
//   - progress / heartbeats / objects 为可选依赖，未设置时对应能力降级
type Handler struct {
	store storage.PersistentStore // 持久化存储（生成记录 + 用户）

	registry *generator.Registry // 生成器注册表
	engine   *resolve.Engine     // 引用解析引擎
	graph    *lineage.Resolver   // 血缘遍历器

	queue  queue.GenerationQueue       // 调度队列
	events eventbus.GenerationEventBus // 生成事件流

	// 可选依赖
	progress   cache.GenerationProgressCache // 进度缓存（Redis）
	heartbeats storage.WorkerHeartbeatStore  // worker 心跳（etcd）
	objects    generation.ObjectStore        // 产物对象存储（MinIO）

	authConfig auth.Config

	// 内部组件
	eventGateway *EventGateway // WebSocket 事件网关
	metrics      *Metrics      // Prometheus 指标
}

// NewHandler 创建 Handler 实例
//
// 参数：
//   - store: 持久化存储层实例
//   - registry: 已加载的生成器注册表
//   - q: 生成任务调度队列
//   - events: 生成事件总线（可为 nil，事件网关降级为状态轮询）
func NewHandler(store storage.PersistentStore, registry *generator.Registry, q queue.GenerationQueue, events eventbus.GenerationEventBus) *Handler {
	h := &Handler{
		store:    store,
		registry: registry,
		queue:    q,
		events:   events,
	}

	// 解析引擎的产物句柄通过方法值绑定：对象存储是否接入
	// 在每次解析时判断，SetObjectStore 的调用顺序不影响行为
	h.engine = resolve.NewEngine(registry, store, nil, h.artifactHandle)
	h.graph = lineage.NewResolver(store, nil)

	h.eventGateway = NewEventGateway(store, events)
	h.metrics = NewMetrics("genstudio")
	h.eventGateway.SetMetrics(h.metrics)
	return h
}

// SetProgressCache 设置生成进度缓存
func (h *Handler) SetProgressCache(p cache.GenerationProgressCache) {
	h.progress = p
}

// SetObjectStore 设置产物对象存储
// 未设置时产物句柄与下载接口退化为返回存储路径
func (h *Handler) SetObjectStore(o generation.ObjectStore) {
	h.objects = o
}

// SetHeartbeats 设置 worker 心跳存储
// 未设置时 worker 运维接口返回空列表
func (h *Handler) SetHeartbeats(s storage.WorkerHeartbeatStore) {
	h.heartbeats = s
}

// SetAuthConfig 设置认证配置
func (h *Handler) SetAuthConfig(cfg auth.Config) {
	h.authConfig = cfg
	h.eventGateway.SetAuthConfig(cfg)
}

// GetMetrics 暴露指标器，入口用它挂 /metrics 路由
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// artifactHandle 将已完成的生成记录转换为产物句柄
//
// 对象存储接入时返回预签名 URL，供 worker 直接下载；
// 否则返回产物的存储路径。
func (h *Handler) artifactHandle(ctx context.Context, gen *model.Generation) (string, error) {
	if h.objects == nil || gen.ArtifactPath == nil || *gen.ArtifactPath == "" {
		return resolve.PathHandle(ctx, gen)
	}
	return h.objects.PresignedGetURL(ctx, *gen.ArtifactPath, handleExpiry)
}

// writeJSON 按给定状态码输出 JSON 响应体
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

// writeError 错误统一为 {"error": message} 信封
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health 健康检查
//
// 路由: GET /health
//
// 不触达任何后端依赖，应答 {"status": "ok"} 即进程存活。
// 负载均衡与 e2e 测试都拿它当就绪信号。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
