// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Analysis metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	RecomputePasses  *prometheus.CounterVec

	// Market data metrics
	UpstreamCalls   *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	SourceFallbacks *prometheus.CounterVec

	// Scheduler metrics
	SchedulerTick prometheus.Gauge
	JobExecutions *prometheus.CounterVec
	JobPanics     *prometheus.CounterVec

	// Broadcast metrics
	BroadcastMessages *prometheus.CounterVec
	WebsocketClients  prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_analytics"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "analyses_total",
			Help:      "Total number of token analyses by recommendation",
		}, []string{"recommendation"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Single token analysis duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RecomputePasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "recompute_passes_total",
			Help:      "Total number of full recompute passes by status",
		}, []string{"status"}),

		UpstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market_data",
			Name:      "upstream_calls_total",
			Help:      "Total number of market data upstream calls by operation and status",
		}, []string{"operation", "status"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market_data",
			Name:      "upstream_latency_seconds",
			Help:      "Market data upstream call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SourceFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market_data",
			Name:      "fallbacks_total",
			Help:      "Total number of reads served from stale or default values",
		}, []string{"operation", "kind"}),

		SchedulerTick: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick",
			Help:      "Current scheduler tick",
		}),
		JobExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_executions_total",
			Help:      "Total number of automation job executions by status",
		}, []string{"job", "status"}),
		JobPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_panics_total",
			Help:      "Total number of recovered automation job panics",
		}, []string{"job"}),

		BroadcastMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_total",
			Help:      "Total number of messages published by channel",
		}, []string{"channel"}),
		WebsocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "websocket_clients",
			Help:      "Number of connected websocket clients",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordAnalysis records one completed token analysis.
func RecordAnalysis(recommendation string, seconds float64) {
	DefaultMetrics.AnalysesTotal.WithLabelValues(recommendation).Inc()
	DefaultMetrics.AnalysisDuration.Observe(seconds)
}

// RecordRecomputePass records a full recompute pass.
func RecordRecomputePass(err error) {
	DefaultMetrics.RecomputePasses.WithLabelValues(status(err)).Inc()
}

// RecordUpstreamCall records a market data upstream call.
func RecordUpstreamCall(operation string, seconds float64, err error) {
	DefaultMetrics.UpstreamCalls.WithLabelValues(operation, status(err)).Inc()
	DefaultMetrics.UpstreamLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordFallback records a read served from a stale ("stale") or default ("default") value.
func RecordFallback(operation, kind string) {
	DefaultMetrics.SourceFallbacks.WithLabelValues(operation, kind).Inc()
}

// UpdateSchedulerTick updates the scheduler tick gauge.
func UpdateSchedulerTick(tick int64) {
	DefaultMetrics.SchedulerTick.Set(float64(tick))
}

// RecordJobExecution records an automation job run.
func RecordJobExecution(job string, err error) {
	DefaultMetrics.JobExecutions.WithLabelValues(job, status(err)).Inc()
}

// RecordJobPanic records a recovered automation job panic.
func RecordJobPanic(job string) {
	DefaultMetrics.JobPanics.WithLabelValues(job).Inc()
}

// RecordBroadcast records a message published on channel.
func RecordBroadcast(channel string) {
	DefaultMetrics.BroadcastMessages.WithLabelValues(channel).Inc()
}

// UpdateWebsocketClients updates the websocket client gauge.
func UpdateWebsocketClients(n int) {
	DefaultMetrics.WebsocketClients.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, route, statusCode string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
