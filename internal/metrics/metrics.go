// Package metrics provides Prometheus metrics for repowatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "repowatch"
)

// Poll cycle metrics
var (
	// CyclesTotal counts completed poll cycles.
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total number of completed poll cycles",
		},
	)

	// CyclesSkipped counts ticks skipped because a cycle was still running.
	CyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_skipped_total",
			Help:      "Total number of ticks skipped due to an in-flight cycle",
		},
	)

	// CycleDuration tracks poll cycle duration.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// TargetsSkipped counts targets skipped within cycles, by reason.
	TargetsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "targets_skipped_total",
			Help:      "Total number of per-target skips by reason",
		},
		[]string{"reason"},
	)

	// ConditionsDetected counts newly detected conditions by kind.
	ConditionsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "conditions_detected_total",
			Help:      "Total number of newly detected conditions by kind",
		},
		[]string{"kind"},
	)
)

// Alerting metrics
var (
	// AlertsFired counts fired alerts.
	AlertsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "alerts_fired_total",
			Help:      "Total number of alerts fired",
		},
	)

	// AlertsSuppressed counts alerts suppressed by the silence period.
	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "alerts_suppressed_total",
			Help:      "Total number of alerts suppressed by the silence period",
		},
	)

	// DispatchFailures counts failed notification dispatches.
	DispatchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "dispatch_failures_total",
			Help:      "Total number of failed notification dispatches",
		},
	)

	// EventsRecorded counts events recorded in the event store.
	EventsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "recorded_total",
			Help:      "Total number of events recorded",
		},
	)
)
