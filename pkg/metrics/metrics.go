// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// BackendCallDuration tracks the latency of one worker backend call.
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Worker backend call duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// PipelineRunsTotal tracks finished pipeline runs by terminal state.
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by terminal state",
		},
		[]string{"pipeline", "state"},
	)

	// PipelineStepsTotal tracks messages produced by each role.
	PipelineStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_steps_total",
			Help: "Messages produced per pipeline role",
		},
		[]string{"pipeline", "role"},
	)

	// PipelineTerminationsTotal tracks why completed runs stopped.
	PipelineTerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_terminations_total",
			Help: "Pipeline terminations by cause",
		},
		[]string{"pipeline", "cause"},
	)

	// DeliveryFinishTimeouts counts streams whose background run did not confirm in time.
	DeliveryFinishTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_finish_timeouts_total",
			Help: "Background runs that did not confirm completion before the finish timeout",
		},
	)

	// JournalPublishFailures counts events that could not be written to the run journal.
	JournalPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_publish_failures_total",
			Help: "Run journal publish failures",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBackendCall records metrics for one worker backend call.
func RecordBackendCall(provider, status string, duration float64, tokensIn, tokensOut int) {
	BackendCallDuration.WithLabelValues(provider, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// RecordRun records the terminal state of a pipeline run.
func RecordRun(pipeline, state string) {
	PipelineRunsTotal.WithLabelValues(pipeline, state).Inc()
}

// RecordStep records one message appended by a role.
func RecordStep(pipeline, role string) {
	PipelineStepsTotal.WithLabelValues(pipeline, role).Inc()
}

// RecordTermination records the cause that ended a run.
func RecordTermination(pipeline, cause string) {
	PipelineTerminationsTotal.WithLabelValues(pipeline, cause).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
