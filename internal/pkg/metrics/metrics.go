package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestDuration HTTP 请求耗时分布，按方法与状态码分类。
	HTTPRequestDuration *prometheus.HistogramVec

	// AuthOperationsTotal 认证操作计数，按操作与结果分类。
	// operation: register / verify / login / resend
	// result: ok / rejected / error
	AuthOperationsTotal *prometheus.CounterVec

	// EmailSendTotal 邮件发送计数，按邮件类型与结果分类。
	EmailSendTotal *prometheus.CounterVec

	// NotesStatsCacheTotal 笔记统计缓存命中计数。
	NotesStatsCacheTotal *prometheus.CounterVec

	initOnce sync.Once
)

// InitMetrics 注册 Prometheus 指标。重复调用只注册一次。
func InitMetrics() {
	initOnce.Do(func() {
		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hdnotes_http_request_duration_seconds",
			Help:    "HTTP request latency distribution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"})

		AuthOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hdnotes_auth_operations_total",
			Help: "Auth state machine operations by result.",
		}, []string{"operation", "result"})

		EmailSendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hdnotes_email_send_total",
			Help: "Outbound email attempts by type and result.",
		}, []string{"type", "result"})

		NotesStatsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hdnotes_notes_stats_cache_total",
			Help: "Notes stats cache lookups by outcome (hit / miss).",
		}, []string{"outcome"})

		prometheus.MustRegister(
			HTTPRequestDuration,
			AuthOperationsTotal,
			EmailSendTotal,
			NotesStatsCacheTotal,
		)
	})
}
