// Package metrics provides Prometheus-based metrics recording for tool
// selection and graph execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records RL and orchestration metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	selections          *prometheus.CounterVec
	updates             *prometheus.CounterVec
	rewards             *prometheus.HistogramVec
	persistenceErrors   *prometheus.CounterVec
	toolCalls           *prometheus.CounterVec
	steps               *prometheus.CounterVec
	runs                *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
	supervisorDecisions *prometheus.CounterVec
}

// New creates a Recorder registered with reg.
// Pass prometheus.DefaultRegisterer to expose on the default /metrics handler,
// or a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		selections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rise_rl_selections_total",
				Help: "Tool selections by manager and mode (explore or exploit)",
			},
			[]string{"manager", "mode"},
		),
		updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rise_rl_updates_total",
				Help: "Q-value updates by manager",
			},
			[]string{"manager"},
		),
		rewards: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rise_rl_reward",
				Help:    "Rewards applied to Q-values",
				Buckets: []float64{-1, -0.5, -0.25, 0, 0.25, 0.5, 0.75, 1},
			},
			[]string{"manager"},
		),
		persistenceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rise_rl_persistence_errors_total",
				Help: "Q-table load, save and export failures",
			},
			[]string{"manager", "op"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rise_team_tool_calls_total",
				Help: "Tool invocations by team, tool and status",
			},
			[]string{"team", "tool", "status"},
		),
		steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rise_graph_steps_total",
				Help: "Components executed by the graph walk",
			},
			[]string{"component"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rise_graph_runs_total",
				Help: "Completed graph invocations by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rise_graph_run_duration_seconds",
				Help:    "Duration of graph invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		supervisorDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rise_supervisor_decisions_total",
				Help: "Supervisor routing decisions by target and outcome",
			},
			[]string{"target", "outcome"},
		),
	}
}

// ObserveSelection counts a tool selection.
func (r *Recorder) ObserveSelection(manager string, explored bool) {
	if r == nil {
		return
	}
	mode := "exploit"
	if explored {
		mode = "explore"
	}
	r.selections.WithLabelValues(manager, mode).Inc()
}

// ObserveUpdate counts a Q-value update and records its reward.
func (r *Recorder) ObserveUpdate(manager string, reward float64) {
	if r == nil {
		return
	}
	r.updates.WithLabelValues(manager).Inc()
	r.rewards.WithLabelValues(manager).Observe(reward)
}

// IncPersistenceError counts a failed load, save or export.
func (r *Recorder) IncPersistenceError(manager, op string) {
	if r == nil {
		return
	}
	r.persistenceErrors.WithLabelValues(manager, op).Inc()
}

// ObserveToolCall counts a tool invocation.
func (r *Recorder) ObserveToolCall(team, tool string, ok bool) {
	if r == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	r.toolCalls.WithLabelValues(team, tool, status).Inc()
}

// ObserveStep counts a component execution.
func (r *Recorder) ObserveStep(component string) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(component).Inc()
}

// ObserveRun records a finished invocation.
func (r *Recorder) ObserveRun(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveDecision counts a supervisor decision.
func (r *Recorder) ObserveDecision(target, outcome string) {
	if r == nil {
		return
	}
	r.supervisorDecisions.WithLabelValues(target, outcome).Inc()
}
