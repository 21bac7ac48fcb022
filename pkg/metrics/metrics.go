package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Agent self-metrics, served on /metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cost_agent_runs_total",
			Help: "Total number of analysis runs by final status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cost_agent_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
		},
	)

	ActionsProposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cost_agent_actions_proposed_total",
			Help: "Total number of actions proposed by producers",
		},
		[]string{"kind"},
	)

	ProducerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cost_agent_producer_failures_total",
			Help: "Total number of producer invocations that failed",
		},
		[]string{"producer"},
	)

	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cost_agent_gate_decisions_total",
			Help: "Total number of safety gate decisions",
		},
		[]string{"kind", "result"}, // result: approved/rejected
	)

	Dispositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cost_agent_dispositions_total",
			Help: "Total number of approved actions by disposition",
		},
		[]string{"kind", "disposition"},
	)

	Executions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cost_agent_executions_total",
			Help: "Total number of action executions",
		},
		[]string{"kind", "result"}, // result: executed/failed
	)

	UserRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cost_agent_user_rejections_total",
			Help: "Total number of pending actions rejected by a human",
		},
	)

	PendingActions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cost_agent_pending_actions",
			Help: "Number of actions awaiting human approval",
		},
	)

	SavingsUSD = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cost_agent_realized_savings_usd_total",
			Help: "Estimated monthly savings of executed actions in USD",
		},
	)
)
