// Package metrics provides Prometheus metrics for cascade: propagation
// passes, dependency mutations, critical-path recomputes and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Propagation ────────────────────────────────────────────────────────────

// Propagations counts propagation passes by outcome (ok, aborted).
var Propagations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cascade",
	Name:      "propagations_total",
	Help:      "Total propagation passes by outcome.",
}, []string{"outcome"})

// PropagationLatency tracks one date-change command end to end, in seconds.
var PropagationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "cascade",
	Name:      "propagation_latency_seconds",
	Help:      "Date-change command duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
})

// PropagationVisits tracks queue dequeues per pass.
var PropagationVisits = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "cascade",
	Name:      "propagation_visits",
	Help:      "Queue visits per propagation pass.",
	Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
})

// TasksShifted counts tasks whose dates a cascade moved.
var TasksShifted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cascade",
	Name:      "tasks_shifted_total",
	Help:      "Total tasks moved by propagation.",
})

// PinnedConflicts counts pinned tasks a cascade reached but left in place.
var PinnedConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cascade",
	Name:      "pinned_conflicts_total",
	Help:      "Total pinned tasks skipped by propagation.",
})

// UnexpectedCycles counts passes aborted on a persisted cycle.
var UnexpectedCycles = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cascade",
	Name:      "unexpected_cycles_total",
	Help:      "Total traversals aborted on an unexpected cycle.",
})

// ─── Dependencies ───────────────────────────────────────────────────────────

// DependencyMutations counts accepted dependency changes by op (add, remove).
var DependencyMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cascade",
	Name:      "dependency_mutations_total",
	Help:      "Total accepted dependency mutations.",
}, []string{"op"})

// DependencyRejections counts rejected edges by error code.
var DependencyRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cascade",
	Name:      "dependency_rejections_total",
	Help:      "Total rejected dependency mutations by code.",
}, []string{"code"})

// ─── Critical path ──────────────────────────────────────────────────────────

// CriticalTasks holds the critical task count of the most recently
// recomputed scope. It carries no scope label, so the series count stays
// fixed however many scopes are created.
var CriticalTasks = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "cascade",
	Name:      "critical_tasks",
	Help:      "Critical tasks in the most recently recomputed scope.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "cascade",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cascade",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
