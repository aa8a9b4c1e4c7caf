package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AutomationRulesEvaluatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_rules_evaluated_total",
			Help: "Total number of automation rules evaluated (count)",
		},
		[]string{"entity_type", "event", "result"},
	)

	AutomationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_actions_total",
			Help: "Total number of automation actions executed (count)",
		},
		[]string{"action_type", "status"},
	)

	AutomationPassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automation_pass_duration_ms",
			Help:    "Duration of a full rule pass for one triggering event in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"entity_type", "event"},
	)

	AutomationActiveEngines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "automation_active_engines",
			Help: "Number of live per-workspace rule engines (count)",
		},
	)

	AutomationListenerPanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_listener_panics_total",
			Help: "Total number of event listener panics recovered by the emitter (count)",
		},
		[]string{"entity_type", "event"},
	)

	IngestEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total number of domain events consumed by the ingest service (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications dispatched (count)",
		},
		[]string{"status"},
	)
)

func RegisterAutomationMetrics() {
	prometheus.MustRegister(
		AutomationRulesEvaluatedTotal,
		AutomationActionsTotal,
		AutomationPassDuration,
		AutomationActiveEngines,
		AutomationListenerPanicsTotal,
	)
}

func RegisterIngestMetrics() {
	prometheus.MustRegister(
		IngestEventsTotal,
		RetryAttemptsTotal,
		DLQMessagesTotal,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterNotifyMetrics() {
	prometheus.MustRegister(NotificationsSentTotal)
}

func ObserveAutomationPassDuration(entityType, event string, duration time.Duration) {
	AutomationPassDuration.WithLabelValues(entityType, event).Observe(float64(duration.Milliseconds()))
}

func SetActiveEngines(count int) {
	AutomationActiveEngines.Set(float64(count))
}
