package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CredentialsIssued counts real-time credentials minted, by kind (live, watch, call) and role.
	CredentialsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanlive_rtc_credentials_issued_total",
		Help: "Total number of real-time join credentials issued",
	}, []string{"kind", "role"})

	// LiveOperations counts live lifecycle operations by operation and outcome code.
	LiveOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanlive_live_operations_total",
		Help: "Total live session operations by outcome",
	}, []string{"operation", "outcome"})

	// SideEffectFailures counts best-effort side effects that failed.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanlive_side_effect_failures_total",
		Help: "Total number of failed best-effort side effects",
	}, []string{"name"})

	// RemindersDelivered counts reminder tasks handled by the worker, by outcome.
	RemindersDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanlive_reminders_delivered_total",
		Help: "Total live reminder tasks processed by the worker",
	}, []string{"outcome"})

	// WebSocketDrops counts outbound websocket messages dropped by a hub, by reason.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanlive_websocket_drops_total",
		Help: "Total websocket messages dropped because of backpressure or closed clients",
	}, []string{"hub", "reason"})
)

// RecordLiveOperation increments LiveOperations with "ok" or the error code.
func RecordLiveOperation(operation, code string) {
	if code == "" {
		code = "ok"
	}
	LiveOperations.WithLabelValues(operation, code).Inc()
}
