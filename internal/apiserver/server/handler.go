// Package server 路由配置
//
// 本文件定义 HTTP API 路由，将请求分发到各领域独立包。
package server

import (
	"net/http"

	"genstudio/internal/apiserver/auth"
	"genstudio/internal/apiserver/generation"
	"genstudio/internal/apiserver/generatorapi"
	"genstudio/internal/apiserver/sysconfig"
	"genstudio/internal/apiserver/workeradmin"
)

// Router 组装全部 HTTP 路由
//
// 健康与可观测:
//   - GET /health  - 服务健康检查
//   - GET /metrics - Prometheus 指标
//
// 生成管理 (Generation):
//   - GET    /api/v1/generations                    - 列出生成记录
//   - POST   /api/v1/generations                    - 提交生成任务
//   - GET    /api/v1/generations/{id}               - 获取生成详情
//   - DELETE /api/v1/generations/{id}               - 删除生成记录
//   - POST   /api/v1/generations/{id}/cancel        - 取消排队中的任务
//   - POST   /api/v1/generations/{id}/regenerate    - 以相同参数重新生成
//   - GET    /api/v1/generations/{id}/ancestry      - 祖先血缘树
//   - GET    /api/v1/generations/{id}/descendants   - 后代列表
//   - GET    /api/v1/generations/{id}/children      - 直接子代
//   - GET    /api/v1/generations/{id}/artifact      - 产物下载
//   - GET    /api/v1/generations/{id}/events        - 事件轮询
//   - GET    /api/v1/generations/{id}/progress      - 进度查询
//
// 生成器目录 (Generator):
//   - GET    /api/v1/generators                - 列出可用生成器
//   - GET    /api/v1/generators/{name}         - 生成器详情
//   - GET    /api/v1/generators/{name}/schema  - 参数 schema
//
// Worker 运维:
//   - GET    /api/v1/workers       - 列出在线 worker
//   - GET    /api/v1/workers/{id}  - worker 详情
//   - GET    /api/v1/queue/stats   - 队列深度统计
//
// 配置管理（仅管理员）:
//   - GET    /api/v1/config - 读取配置文件
//   - PUT    /api/v1/config - 更新配置文件
//
// WebSocket:
//   - GET    /ws/generations/{id}/events - 实时事件推送
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 基础端点
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("GET /api/v1/openapi", h.OpenAPISpec)
	mux.HandleFunc("GET /api/v1/docs", h.Docs)

	// Generation 接口
	genHandler := generation.NewHandler(h.store, h.registry, h.engine, h.graph, h.queue, h.events)
	if h.progress != nil {
		genHandler.SetProgressCache(h.progress)
	}
	if h.objects != nil {
		genHandler.SetObjectStore(h.objects)
	}
	genHandler.RegisterRoutes(mux)

	// Generator 目录接口
	generatorapi.NewHandler(h.registry).RegisterRoutes(mux)

	// Worker 运维接口
	workeradmin.NewHandler(h.heartbeats, h.queue).RegisterRoutes(mux)

	// 配置管理接口（仅管理员）
	sysconfig.NewHandler().RegisterRoutes(mux)

	// Auth 路由
	auth.NewHandler(h.store, h.authConfig).RegisterRoutes(mux)

	// REST 链路：指标 → 认证 → CORS。
	// WebSocket 直挂顶层：指标中间件包装 ResponseWriter 会丢掉 http.Hijacker
	api := corsMiddleware(auth.Middleware(h.authConfig)(h.metrics.MetricsMiddleware(mux)))

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/generations/{id}/events", h.eventGateway.HandleWebSocket)
	topMux.Handle("/", api)
	return topMux
}

// corsMiddleware 放开跨域访问，预检请求直接应答
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		head := w.Header()
		head.Set("Access-Control-Allow-Origin", "*")
		head.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		head.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
