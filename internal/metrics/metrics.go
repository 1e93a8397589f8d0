// Package metrics exposes Shrimp's Prometheus instrumentation: turn,
// tool-call, LLM, and HTTP counters and histograms, registered once at
// startup and served at GET /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector Shrimp records against.
type Metrics struct {
	// TurnsTotal counts completed turns by outcome (success|error).
	TurnsTotal *prometheus.CounterVec

	// TurnDuration measures wall-clock turn latency in seconds.
	TurnDuration prometheus.Histogram

	// ToolCallsTotal counts tool dispatches by tool name and outcome.
	ToolCallsTotal *prometheus.CounterVec

	// ToolCallDuration measures tool execution latency by tool name.
	ToolCallDuration *prometheus.HistogramVec

	// LLMRequestsTotal counts LLM completion calls by model and outcome.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestDuration measures LLM completion latency by model.
	LLMRequestDuration *prometheus.HistogramVec

	// HTTPRequestsTotal counts HTTP requests by route and status code.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency by route.
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers and returns Shrimp's metric set against the default registry.
func New() *Metrics {
	return &Metrics{
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shrimp_turns_total",
			Help: "Total number of orchestrator turns, by outcome.",
		}, []string{"outcome"}),

		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shrimp_turn_duration_seconds",
			Help:    "Turn orchestrator latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}),

		ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shrimp_tool_calls_total",
			Help: "Total number of tool dispatches, by tool name and outcome.",
		}, []string{"tool", "outcome"}),

		ToolCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrimp_tool_call_duration_seconds",
			Help:    "Tool dispatch latency in seconds, by tool name.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),

		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shrimp_llm_requests_total",
			Help: "Total number of LLM completion calls, by model and outcome.",
		}, []string{"model", "outcome"}),

		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrimp_llm_request_duration_seconds",
			Help:    "LLM completion latency in seconds, by model.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shrimp_http_requests_total",
			Help: "Total number of HTTP requests, by route and status code.",
		}, []string{"route", "status"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrimp_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by route.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"route"}),
	}
}

// ObserveToolCall records one tool dispatch's outcome and duration.
func (m *Metrics) ObserveToolCall(tool string, ok bool, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveTurn records one completed turn's outcome and duration.
func (m *Metrics) ObserveTurn(ok bool, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

// ObserveLLMRequest records one LLM completion call's outcome and duration.
func (m *Metrics) ObserveLLMRequest(model string, ok bool, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.LLMRequestsTotal.WithLabelValues(model, outcome).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveHTTPRequest records one HTTP request's route, status, and duration.
func (m *Metrics) ObserveHTTPRequest(route, status string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
