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

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// ConversationTransitionsTotal tracks status transitions.
	ConversationTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_transitions_total",
			Help: "Total conversation status transitions",
		},
		[]string{"to"},
	)

	// MessagesTotal tracks messages appended, by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"role"},
	)

	// MessagesClassifiedTotal tracks classification write-backs, by tier.
	MessagesClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_classified_total",
			Help: "Total messages classified",
		},
		[]string{"tier"},
	)

	// ClassificationPublishesTotal tracks classification jobs handed to
	// the queue.
	ClassificationPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_publishes_total",
			Help: "Total classification jobs published",
		},
		[]string{"result"},
	)

	// CounterReconciliationFailures tracks appends where the message was
	// persisted but the conversation bookkeeping write failed.
	CounterReconciliationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_count_reconciliation_failures_total",
			Help: "Appends left with a persisted message but stale conversation counters",
		},
	)

	// DailyLimitRejections tracks appends rejected by the daily message
	// limit.
	DailyLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daily_limit_rejections_total",
			Help: "Messages rejected by the daily usage limit",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
