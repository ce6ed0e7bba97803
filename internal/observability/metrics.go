package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects engine-level Prometheus metrics:
//   - LLM request performance, outcomes, and token consumption
//   - Tool execution counts and latencies by action type
//   - Run lifecycle counts by terminal status
//   - HTTP request counts and latencies
//
// Metrics are registered on their own registry so tests can create
// isolated instances; the gateway exposes the registry at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts action executions.
	// Labels: action_type, status
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures action execution time in seconds.
	// Labels: action_type
	ToolExecutionDuration *prometheus.HistogramVec

	// RunCounter counts runs by terminal status.
	// Labels: status (completed|failed|cancelled|blocked)
	RunCounter *prometheus.CounterVec

	// ActiveRuns is a gauge of runs currently in a non-terminal state.
	ActiveRuns prometheus.Gauge

	// ActiveTerminalSessions is a gauge of live PTY sessions.
	ActiveTerminalSessions prometheus.Gauge

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and kind.
	// Labels: component (provider|planner|tool|run|gateway), error_kind
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexar_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexar_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexar_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexar_tool_executions_total",
				Help: "Total number of action executions by type and status",
			},
			[]string{"action_type", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexar_tool_execution_duration_seconds",
				Help:    "Duration of action executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"action_type"},
		),

		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexar_runs_total",
				Help: "Total number of runs reaching a terminal status",
			},
			[]string{"status"},
		),

		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexar_active_runs",
				Help: "Current number of runs in a non-terminal state",
			},
		),

		ActiveTerminalSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexar_active_terminal_sessions",
				Help: "Current number of live PTY sessions",
			},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexar_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexar_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexar_errors_total",
				Help: "Total number of errors by component and kind",
			},
			[]string{"component", "error_kind"},
		),
	}
}

// Registry returns the registry holding all engine metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordLLMRequest records one LLM API call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records one action execution.
func (m *Metrics) RecordToolExecution(actionType, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(actionType, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(actionType).Observe(durationSeconds)
}

// RunStarted increments the active-runs gauge.
func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished decrements the active-runs gauge and counts the terminal status.
func (m *Metrics) RunFinished(status string) {
	m.ActiveRuns.Dec()
	m.RunCounter.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and error kind.
func (m *Metrics) RecordError(component, errorKind string) {
	m.ErrorCounter.WithLabelValues(component, errorKind).Inc()
}
