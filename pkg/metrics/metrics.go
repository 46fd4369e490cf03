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

	// LLMRequestDuration tracks completion call latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
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

	// ChatMessagesTotal tracks messages appended to conversation history.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total messages appended to conversation history",
		},
		[]string{"role"},
	)

	// ConfidenceScore tracks the distribution of assistant confidence.
	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_confidence_score",
			Help:    "Confidence score of assistant replies after the grounding floor",
			Buckets: []float64{.1, .2, .25, .3, .35, .4, .5, .6, .7, .8, .9, 1},
		},
	)

	// EscalationsTotal tracks escalations by reason.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Total conversations escalated to a human agent",
		},
		[]string{"reason"},
	)

	// WaitingSessions tracks agent sessions not yet claimed.
	WaitingSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_sessions_waiting",
			Help: "Number of escalated sessions waiting for an agent",
		},
	)

	// ConnectionsActive tracks live duplex connections.
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"side"},
	)

	// RelayDeliveries tracks routed message outcomes.
	RelayDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Messages routed to live connections",
		},
		[]string{"target", "result"},
	)

	// PersistenceFailures tracks best-effort durability failures.
	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_failures_total",
			Help: "Failed best-effort persistence operations",
		},
		[]string{"operation"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLM records metrics for a completion call.
func RecordLLM(provider, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// RecordDelivery records a relay outcome.
func RecordDelivery(target string, delivered bool) {
	result := "dropped"
	if delivered {
		result = "delivered"
	}
	RelayDeliveries.WithLabelValues(target, result).Inc()
}

// IncrementConnections increments the live connection count for a side.
func IncrementConnections(side string) {
	ConnectionsActive.WithLabelValues(side).Inc()
}

// DecrementConnections decrements the live connection count for a side.
func DecrementConnections(side string) {
	ConnectionsActive.WithLabelValues(side).Dec()
}
