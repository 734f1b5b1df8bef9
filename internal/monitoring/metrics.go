package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "furrydomains"

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 外部服务调用（cloudflare / slack / mailgun / smtp / s3）
	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// 业务指标
	DNSRecordChanges     *prometheus.CounterVec
	AccessDecisions      *prometheus.CounterVec
	AccessRequestsPurged prometheus.Counter
	MessagesReceived     *prometheus.CounterVec
	MessagesSent         prometheus.Counter
	FilesUploaded        *prometheus.CounterVec
	FileBytesServed      prometheus.Counter
	LinksCreated         prometheus.Counter
	LinkClicks           prometheus.Counter

	// 系统指标
	DatabaseConnections prometheus.Gauge
	WebSocketClients    prometheus.Gauge
	PoolQueueLength     prometheus.Gauge

	// 错误指标
	ErrorsTotal     *prometheus.CounterVec
	PanicsTotal     prometheus.Counter
	RateLimitBlocks prometheus.Counter
}

// NewMetrics 创建监控指标，使用独立的注册表
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		UpstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Calls made to external services",
		}, []string{"service", "operation", "result"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Latency of calls made to external services",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation"}),

		DNSRecordChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_record_changes_total",
			Help:      "DNS records created, updated or deleted by tenants",
		}, []string{"action", "record_type"}),
		AccessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access request state transitions",
		}, []string{"status"}),
		AccessRequestsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_requests_purged_total",
			Help:      "Denied access requests removed by the purge job",
		}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages stored",
		}, []string{"source"}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages confirmed by the transport",
		}),
		FilesUploaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_uploaded_total",
			Help:      "CDN files registered",
		}, []string{"mode"}),
		FileBytesServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_bytes_served_total",
			Help:      "Bytes streamed from the CDN endpoint",
		}),
		LinksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_created_total",
			Help:      "Short links created",
		}),
		LinkClicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_clicks_total",
			Help:      "Short link resolutions",
		}),

		DatabaseConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections",
			Help:      "Acquired connections in the PostgreSQL pool",
		}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients",
		}),
		PoolQueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_queue_length",
			Help:      "Tasks waiting in the background worker pool",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by type and component",
		}, []string{"error_type", "component"}),
		PanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Recovered panics",
		}),
		RateLimitBlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_blocks_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// ObserveUpstream 记录一次外部服务调用
func (m *Metrics) ObserveUpstream(service, operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UpstreamCalls.WithLabelValues(service, operation, result).Inc()
	m.UpstreamDuration.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
}

// RecordDNSChange 记录 DNS 记录变更
func (m *Metrics) RecordDNSChange(action, recordType string) {
	m.DNSRecordChanges.WithLabelValues(action, recordType).Inc()
}

// RecordAccessDecision 记录访问申请状态变化
func (m *Metrics) RecordAccessDecision(status string) {
	m.AccessDecisions.WithLabelValues(status).Inc()
}

// RecordMessageReceived 记录收到的邮件
func (m *Metrics) RecordMessageReceived(source string) {
	m.MessagesReceived.WithLabelValues(source).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层注册表（测试使用）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
