// Package metrics exposes Prometheus instrumentation for the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatTurnsTotal counts chat turns by terminal state.
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Chat turns by outcome",
		},
		[]string{"outcome"},
	)

	// RateLimitRejectionsTotal counts turns rejected by a quota window.
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_rejections_total",
			Help: "Chat turns rejected by a quota window",
		},
		[]string{"window"},
	)

	// CompletionDuration tracks upstream completion latency.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_request_duration_seconds",
			Help:    "Completion provider request duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)
)

const (
	OutcomeDone     = "done"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"

	WindowBurst = "burst"
	WindowDaily = "daily"
	WindowLock  = "lock"
)

func RecordTurn(outcome string) {
	ChatTurnsTotal.WithLabelValues(outcome).Inc()
}

func RecordRejection(window string) {
	RateLimitRejectionsTotal.WithLabelValues(window).Inc()
	ChatTurnsTotal.WithLabelValues(OutcomeRejected).Inc()
}

func RecordCompletion(model, status string, seconds float64) {
	CompletionDuration.WithLabelValues(model, status).Observe(seconds)
}

func RecordRequest(method, path, status string, seconds float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
