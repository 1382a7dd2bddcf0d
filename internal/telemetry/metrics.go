package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "solvereign",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PlansSolvedTotal counts solver invocations by terminal outcome.
var PlansSolvedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "solvereign",
		Subsystem: "plan",
		Name:      "solved_total",
		Help:      "Total number of solve invocations by terminal state.",
	},
	[]string{"state"},
)

// SolveDuration tracks solver wall-clock time.
var SolveDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "solvereign",
		Subsystem: "plan",
		Name:      "solve_duration_seconds",
		Help:      "Solver invocation duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{"site"},
)

// PublishesTotal counts publish attempts by outcome error code ("" for success).
var PublishesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "solvereign",
		Subsystem: "plan",
		Name:      "publishes_total",
		Help:      "Total number of publish attempts by outcome.",
	},
	[]string{"outcome"},
)

// LocksTotal counts lock attempts by outcome.
var LocksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "solvereign",
		Subsystem: "plan",
		Name:      "locks_total",
		Help:      "Total number of lock attempts by outcome.",
	},
	[]string{"outcome"},
)

// RepairSessionsTotal counts repair session lifecycle transitions.
var RepairSessionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "solvereign",
		Subsystem: "repair",
		Name:      "sessions_total",
		Help:      "Total number of repair session transitions by status.",
	},
	[]string{"status"},
)

// AdvisoryLockWaitSeconds tracks time spent waiting to acquire an advisory lock.
var AdvisoryLockWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "solvereign",
		Subsystem: "lock",
		Name:      "advisory_wait_seconds",
		Help:      "Time spent waiting to acquire an advisory lock.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	},
	[]string{"purpose", "outcome"},
)

// ApprovalDecisionsTotal counts approval decisions by risk tier and outcome.
var ApprovalDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "solvereign",
		Subsystem: "approval",
		Name:      "decisions_total",
		Help:      "Total number of approval decisions by risk tier and outcome.",
	},
	[]string{"risk_level", "outcome"},
)

// KillSwitchTogglesTotal counts kill switch activations/deactivations.
var KillSwitchTogglesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "solvereign",
		Subsystem: "killswitch",
		Name:      "toggles_total",
		Help:      "Total number of kill switch toggles by capability and new state.",
	},
	[]string{"capability", "enabled"},
)

// All returns all SOLVEREIGN-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PlansSolvedTotal,
		SolveDuration,
		PublishesTotal,
		LocksTotal,
		RepairSessionsTotal,
		AdvisoryLockWaitSeconds,
		ApprovalDecisionsTotal,
		KillSwitchTogglesTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
