// Package telemetry exposes the pipeline's operational metrics via
// Prometheus. Audit write failures are the alerting-critical series: they
// are never surfaced to the model, so the counter is the only way an
// operator learns the audit trail is degrading.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_tool_calls_total",
			Help: "Tool calls processed, by tool and result status.",
		},
		[]string{"tool", "status"},
	)
	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolgate_tool_duration_seconds",
			Help:    "Wall time of tool dispatch, by tool.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)
	auditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolgate_audit_write_failures_total",
			Help: "Audit records that could not be persisted.",
		},
	)
	promotionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_promotion_failures_total",
			Help: "Context promotions that degraded to no-context, by tool.",
		},
		[]string{"tool"},
	)
)

func IncToolCall(toolName, status string) {
	toolCalls.WithLabelValues(toolName, status).Inc()
}

func ObserveToolDuration(toolName string, d time.Duration) {
	toolDuration.WithLabelValues(toolName).Observe(d.Seconds())
}

func IncAuditWriteFailure() {
	auditWriteFailures.Inc()
}

func IncPromotionFailure(toolName string) {
	promotionFailures.WithLabelValues(toolName).Inc()
}
