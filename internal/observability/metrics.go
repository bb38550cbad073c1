package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors for tool dispatch and model calls.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	toolsInFlight prometheus.Gauge
	llmRequests   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	chatTurns     *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns the process-wide metrics registered with the
// default Prometheus registry. Collectors are created once so repeated
// runtime reloads do not trigger duplicate registration panics.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return defaultMetrics
}

// NewMetrics registers collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() for both arguments.
func NewMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: gatherer,
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsbot",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Completed tool calls by tool, status and cache outcome.",
		}, []string{"tool", "status", "cached"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opsbot",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool call latency including cache hits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool", "status"}),
		toolsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "opsbot",
			Subsystem: "tool",
			Name:      "executions_in_flight",
			Help:      "Tool executions currently holding a concurrency slot.",
		}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsbot",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Model requests by model and status.",
		}, []string{"model", "status"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opsbot",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Model request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsbot",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"model", "kind"}),
		chatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsbot",
			Subsystem: "orchestrator",
			Name:      "turns_total",
			Help:      "Conversation turns by outcome (direct, tools, shortcut_unknown, error).",
		}, []string{"outcome"}),
	}
}

// RecordToolCall records a completed dispatch.
func (m *Metrics) RecordToolCall(tool string, success, cached bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusLabel(success)
	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
	}
	m.toolCalls.WithLabelValues(tool, status, cachedLabel).Inc()
	m.toolDuration.WithLabelValues(tool, status).Observe(duration.Seconds())
}

// IncInFlight marks a tool execution as holding a slot.
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.toolsInFlight.Inc()
}

// DecInFlight releases a tool execution slot.
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.toolsInFlight.Dec()
}

// RecordLLMRequest records one model request.
func (m *Metrics) RecordLLMRequest(model string, success bool, duration time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(model, statusLabel(success)).Inc()
	m.llmLatency.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		m.llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordChatTurn counts a conversation turn by outcome.
func (m *Metrics) RecordChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
