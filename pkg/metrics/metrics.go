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
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
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

	// LLMRequestDuration tracks completion call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// LLMFallbacksTotal counts retries against a fallback model.
	LLMFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_fallbacks_total",
			Help: "Completion retries against a fallback model",
		},
		[]string{"requested_model", "fallback_model"},
	)

	// WSConnectionsActive tracks open WebSocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of open WebSocket connections",
		},
	)

	// WSBroadcastFailures counts per-connection send failures during fan-out.
	WSBroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_broadcast_failures_total",
			Help: "Per-connection send failures during broadcast",
		},
	)

	// EventsBroadcastTotal counts realtime events fanned out, by type.
	EventsBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_broadcast_total",
			Help: "Realtime events broadcast",
		},
		[]string{"type"},
	)

	// OrchestrationRunsTotal counts finished orchestration runs by outcome.
	OrchestrationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestration_runs_total",
			Help: "Finished orchestration runs",
		},
		[]string{"outcome"},
	)

	// OrchestrationRunsActive tracks runs currently in progress.
	OrchestrationRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestration_runs_active",
			Help: "Orchestration runs in progress",
		},
	)

	// RateLimitRejections counts requests refused by a sliding-window limiter.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests refused by a sliding-window limiter",
		},
		[]string{"limiter"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompletion records metrics for a completion call.
func RecordCompletion(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(model, status).Observe(duration)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}

// RecordFallback records a retry against a fallback model.
func RecordFallback(requested, fallback string) {
	LLMFallbacksTotal.WithLabelValues(requested, fallback).Inc()
}

// IncrementWSConnections increments the open WebSocket connection count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the open WebSocket connection count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}

// RecordRunFinished records the terminal outcome of an orchestration run.
func RecordRunFinished(outcome string) {
	OrchestrationRunsTotal.WithLabelValues(outcome).Inc()
}
