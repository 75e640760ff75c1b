// Package worker Prometheus 指标导出
package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 包含 worker 侧全部指标
type Metrics struct {
	// 生成任务指标
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	GenerationsActive  prometheus.Gauge

	// 队列消费指标
	ClaimsTotal  *prometheus.CounterVec
	UploadsTotal *prometheus.CounterVec
}

// NewMetrics 创建指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		GenerationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_processed_total",
				Help:      "Total generations processed by this worker",
			},
			[]string{"generator", "status"},
		),
		GenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Generation execution duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"generator", "status"},
		),
		GenerationsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "generations_active",
				Help:      "Generations currently being executed",
			},
		),
		ClaimsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_claims_total",
				Help:      "Queue messages claimed, by outcome",
			},
			[]string{"outcome"},
		),
		UploadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_uploads_total",
				Help:      "Artifact uploads to object storage",
			},
			[]string{"status"},
		),
	}
}

// RecordGeneration 记录一次生成的结果与耗时
func (m *Metrics) RecordGeneration(generatorName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(generatorName, status).Inc()
	m.GenerationDuration.WithLabelValues(generatorName, status).Observe(duration.Seconds())
}

// TrackActive 调整正在执行的生成数量
func (m *Metrics) TrackActive(delta int) {
	if m == nil {
		return
	}
	m.GenerationsActive.Add(float64(delta))
}

// RecordClaim 记录一次队列领取的处置结果
func (m *Metrics) RecordClaim(outcome string) {
	if m == nil {
		return
	}
	m.ClaimsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpload 记录一次产物上传
func (m *Metrics) RecordUpload(status string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(status).Inc()
}
