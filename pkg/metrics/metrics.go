// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal tracks inbound webhook events by provider and kind.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook events processed",
		},
		[]string{"provider", "kind"},
	)

	// MessagesTotal tracks canonical messages by direction and provider.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Canonical messages persisted",
		},
		[]string{"provider", "direction"},
	)

	// DuplicateMessagesTotal tracks webhook replays dropped by the
	// idempotency check.
	DuplicateMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_messages_total",
			Help: "Inbound messages dropped as replays",
		},
		[]string{"provider"},
	)

	// FlowRunsTotal tracks flow interpreter executions by outcome.
	FlowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_runs_total",
			Help: "Flow interpreter runs",
		},
		[]string{"outcome"},
	)

	// FlowNodeVisitsTotal tracks node visits by node type.
	FlowNodeVisitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_node_visits_total",
			Help: "Flow nodes executed",
		},
		[]string{"type"},
	)

	// AIRequestDuration tracks AI collaborator call duration.
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// ProviderSendsTotal tracks outbound provider sends by result.
	ProviderSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_sends_total",
			Help: "Outbound provider send attempts",
		},
		[]string{"provider", "status"},
	)

	// QueueDepth tracks pending jobs per queue category.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Pending jobs per queue category",
		},
		[]string{"type"},
	)

	// WebhookRetriesTotal tracks webhook relay retry attempts.
	WebhookRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_retries_total",
			Help: "Webhook relay retries scheduled",
		},
	)

	// DeadLettersTotal tracks jobs moved to the dead-letter store.
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letters_total",
			Help: "Jobs dead-lettered after retry exhaustion",
		},
		[]string{"type"},
	)

	// CampaignSendsTotal tracks campaign sends by result.
	CampaignSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_sends_total",
			Help: "Campaign message sends",
		},
		[]string{"status"},
	)

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
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAIRequest records metrics for one AI collaborator call.
func RecordAIRequest(provider, status string, duration float64) {
	AIRequestDuration.WithLabelValues(provider, status).Observe(duration)
}
