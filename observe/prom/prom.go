// Package prom provides a Prometheus-backed observer for task scopes.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NetPo4ki/go-taskscope/taskscope"
)

// Observer exports scope and subtask lifecycle metrics. It implements
// taskscope.Observer and may be shared across scopes.
type Observer struct {
	scopesOpened     prometheus.Counter
	scopesCancelled  prometheus.Counter
	joins            prometheus.Counter
	joinWait         prometheus.Histogram
	activeSubtasks   prometheus.Gauge
	subtasksStarted  prometheus.Counter
	subtasksFinished *prometheus.CounterVec
	subtaskDuration  prometheus.Histogram
}

// New builds an Observer and registers its collectors with reg. Pass
// prometheus.DefaultRegisterer to use the default registry.
func New(reg prometheus.Registerer) *Observer {
	o := &Observer{
		scopesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskscope",
			Name:      "scopes_opened_total",
			Help:      "Scopes opened.",
		}),
		scopesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskscope",
			Name:      "scopes_cancelled_total",
			Help:      "Scopes cancelled before all subtasks completed.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskscope",
			Name:      "joins_total",
			Help:      "Join operations completed.",
		}),
		joinWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskscope",
			Name:      "join_wait_seconds",
			Help:      "Time spent blocked in Join.",
			Buckets:   prometheus.DefBuckets,
		}),
		activeSubtasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskscope",
			Name:      "active_subtasks",
			Help:      "Subtask bodies currently executing.",
		}),
		subtasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskscope",
			Name:      "subtasks_started_total",
			Help:      "Subtask bodies that began executing.",
		}),
		subtasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskscope",
			Name:      "subtasks_finished_total",
			Help:      "Subtask bodies finished, by terminal state.",
		}, []string{"state"}),
		subtaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskscope",
			Name:      "subtask_duration_seconds",
			Help:      "Subtask body execution time.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		o.scopesOpened, o.scopesCancelled, o.joins, o.joinWait,
		o.activeSubtasks, o.subtasksStarted, o.subtasksFinished, o.subtaskDuration,
	)
	return o
}

// ScopeOpened records scope creation.
func (o *Observer) ScopeOpened(_ context.Context) { o.scopesOpened.Inc() }

// ScopeCancelled records an early stop, joiner- or caller-driven.
func (o *Observer) ScopeCancelled(_ context.Context, _ error) { o.scopesCancelled.Inc() }

// ScopeJoined records a completed join and its wait time.
func (o *Observer) ScopeJoined(_ context.Context, wait time.Duration, _ error) {
	o.joins.Inc()
	o.joinWait.Observe(wait.Seconds())
}

// SubtaskStarted tracks a body entering execution.
func (o *Observer) SubtaskStarted(_ context.Context) {
	o.activeSubtasks.Inc()
	o.subtasksStarted.Inc()
}

// SubtaskFinished tracks a body reaching a terminal state.
func (o *Observer) SubtaskFinished(_ context.Context, dur time.Duration, state taskscope.State, _ error) {
	o.activeSubtasks.Dec()
	o.subtasksFinished.WithLabelValues(state.String()).Inc()
	o.subtaskDuration.Observe(dur.Seconds())
}
