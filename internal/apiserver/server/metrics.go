// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics API Server 进程自身的可观测指标
//
// 生成任务的执行计数与耗时由 worker 侧上报，这里只覆盖
// HTTP 流量、队列水位、补偿循环和 WebSocket 连接。
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	QueueDepth   prometheus.Gauge
	QueuePending prometheus.Gauge

	RequeueCyclesTotal prometheus.Counter
	RequeuedTotal      prometheus.Counter

	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec
}

// NewMetrics 注册并返回指标实例
func NewMetrics(namespace string) *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: gauge("http_requests_in_flight", "Current number of HTTP requests being processed"),

		QueueDepth:   gauge("queue_depth", "Number of generations waiting in the queue"),
		QueuePending: gauge("queue_pending", "Number of claimed but unacknowledged generations"),

		RequeueCyclesTotal: counter("requeue_cycles_total", "Total stale-generation requeue cycles"),
		RequeuedTotal:      counter("requeued_generations_total", "Total generations re-enqueued by the requeue loop"),

		WSConnectionsActive: gauge("websocket_connections_active", "Active WebSocket connections"),
		WSMessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_total",
			Help:      "Total WebSocket messages",
		}, []string{"direction", "type"}),
	}
}

// MetricsMiddleware 采集每个请求的计数、时延与在途数
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		path := normalizePath(r.URL.Path)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
	})
}

// statusRecorder 捕获写回客户端的状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// normalizePath 把路径里的记录 ID 换成占位符，避免高基数标签
//
// 例如 /api/v1/generations/gen-123/ancestry -> /api/v1/generations/{id}/ancestry
func normalizePath(path string) string {
	for _, prefix := range []string{"/api/v1/generations/", "/api/v1/generators/", "/api/v1/workers/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := path[len(prefix):]
		if rest == "" {
			return path
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return prefix + "{id}" + rest[i:]
		}
		return prefix + "{id}"
	}
	return path
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// SetQueueStats 刷新队列深度与在途数
func (m *Metrics) SetQueueStats(depth, pending int64) {
	m.QueueDepth.Set(float64(depth))
	m.QueuePending.Set(float64(pending))
}

// RecordRequeueCycle 记录一次补偿循环
func (m *Metrics) RecordRequeueCycle(requeued int) {
	m.RequeueCyclesTotal.Inc()
	m.RequeuedTotal.Add(float64(requeued))
}

// RecordWSMessage 记录 WebSocket 消息
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// WSConnectionOpened 活跃连接计数 +1
func (m *Metrics) WSConnectionOpened() {
	m.WSConnectionsActive.Inc()
}

// WSConnectionClosed 活跃连接计数 -1
func (m *Metrics) WSConnectionClosed() {
	m.WSConnectionsActive.Dec()
}
