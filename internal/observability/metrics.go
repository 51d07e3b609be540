package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Busara.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Turn-level metrics.
	TurnsTotal  *prometheus.CounterVec
	ReplansTotal prometheus.Counter

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec

	// Tool execution metrics.
	ToolExecutionsTotal *prometheus.CounterVec

	// Orchestration metrics.
	WorkItemsTotal  *prometheus.CounterVec
	WaveDuration    prometheus.Histogram
	ActiveWorkItems prometheus.Gauge

	// HTTP gateway metrics.
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Total user turns processed.",
		}, []string{"status"}),

		ReplansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "agent",
			Name:      "replans_total",
			Help:      "Total replanning rounds across all turns.",
		}),

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total text backend requests.",
		}, []string{"provider", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Text backend request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),

		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Total tool executions.",
		}, []string{"tool", "status"}),

		WorkItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "work_items_total",
			Help:      "Total orchestrated work items.",
		}, []string{"role", "status"}),

		WaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "wave_duration_seconds",
			Help:      "Duration of one dependency wave in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		ActiveWorkItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "active_work_items",
			Help:      "Work items currently executing.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),
	}

	reg.MustRegister(
		m.TurnsTotal,
		m.ReplansTotal,
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.ToolExecutionsTotal,
		m.WorkItemsTotal,
		m.WaveDuration,
		m.ActiveWorkItems,
		m.HTTPRequestsTotal,
	)

	return m
}

// RecordTurn increments the turn counter, nil-safe.
func (m *MetricsCollector) RecordTurn(status string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(status).Inc()
}

// RecordReplan increments the replan counter, nil-safe.
func (m *MetricsCollector) RecordReplan() {
	if m == nil {
		return
	}
	m.ReplansTotal.Inc()
}

// RecordToolExecution increments the tool counter, nil-safe.
func (m *MetricsCollector) RecordToolExecution(tool, status string) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
}

// RecordWorkItem increments the work-item counter, nil-safe.
func (m *MetricsCollector) RecordWorkItem(role, status string) {
	if m == nil {
		return
	}
	m.WorkItemsTotal.WithLabelValues(role, status).Inc()
}

// RecordHTTPRequest increments the gateway request counter, nil-safe.
func (m *MetricsCollector) RecordHTTPRequest(method, path string, statusCode int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
}

// RecordWave observes a wave duration, nil-safe.
func (m *MetricsCollector) RecordWave(d time.Duration) {
	if m == nil {
		return
	}
	m.WaveDuration.Observe(d.Seconds())
}
