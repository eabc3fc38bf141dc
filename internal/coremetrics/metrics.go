// Package coremetrics exposes the engine's and store's Prometheus
// instrumentation. A single EngineMetrics instance is shared by every task
// run; internal/engine records into it. The store-operation counters are
// fed only through ObserveStoreOp, which none of the backends under
// internal/infra/task calls.
package coremetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics holds every counter the task engine records into, plus the
// store-operation counters behind ObserveStoreOp. Constructed once per process and passed down by
// pointer, following the same WithRegisterer-for-tests shape the teacher's
// observability metrics use.
type EngineMetrics struct {
	roundsTotal       *prometheus.CounterVec
	continuationTotal *prometheus.CounterVec
	providerRetries   prometheus.Counter
	stalledTasks      prometheus.Counter
	exhaustedTasks    prometheus.Counter
	completedTasks    prometheus.Counter
	failedTasks       *prometheus.CounterVec
	storeOpsTotal     *prometheus.CounterVec
	storeOpErrors     *prometheus.CounterVec
}

// NewEngineMetrics registers every metric against the default registerer.
func NewEngineMetrics() *EngineMetrics {
	return NewEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewEngineMetricsWithRegisterer registers every metric against reg, so
// tests can use a scratch prometheus.NewRegistry() instead of the process
// default.
func NewEngineMetricsWithRegisterer(reg prometheus.Registerer) *EngineMetrics {
	factory := prometheus.WrapRegistererWithPrefix("taskcore_", reg)

	m := &EngineMetrics{
		roundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_rounds_total",
			Help: "Total continuation rounds executed, labeled by outcome.",
		}, []string{"outcome"}),
		continuationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_continuations_total",
			Help: "Total Continue decisions, labeled by reason.",
		}, []string{"reason"}),
		providerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_provider_retries_total",
			Help: "Total provider-transport retries across all tasks.",
		}),
		stalledTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_stalled_tasks_total",
			Help: "Total tasks failed due to repeated progress-only replies.",
		}),
		exhaustedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_exhausted_tasks_total",
			Help: "Total tasks failed by exceeding max_continuation_rounds.",
		}),
		completedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_completed_tasks_total",
			Help: "Total tasks that reached Completed.",
		}),
		failedTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_failed_tasks_total",
			Help: "Total tasks that reached Failed, labeled by reason.",
		}, []string{"reason"}),
		storeOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_ops_total",
			Help: "Total store operations, labeled by operation name.",
		}, []string{"op"}),
		storeOpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_op_errors_total",
			Help: "Total store operation errors, labeled by operation name.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{
		m.roundsTotal, m.continuationTotal, m.providerRetries, m.stalledTasks,
		m.exhaustedTasks, m.completedTasks, m.failedTasks, m.storeOpsTotal, m.storeOpErrors,
	} {
		factory.MustRegister(c)
	}

	return m
}

func (m *EngineMetrics) ObserveRound(outcome string) {
	if m == nil {
		return
	}
	m.roundsTotal.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) ObserveContinuation(reason string) {
	if m == nil {
		return
	}
	m.continuationTotal.WithLabelValues(reason).Inc()
}

func (m *EngineMetrics) ObserveProviderRetry() {
	if m == nil {
		return
	}
	m.providerRetries.Inc()
}

func (m *EngineMetrics) ObserveStalled() {
	if m == nil {
		return
	}
	m.stalledTasks.Inc()
}

func (m *EngineMetrics) ObserveExhausted() {
	if m == nil {
		return
	}
	m.exhaustedTasks.Inc()
}

func (m *EngineMetrics) ObserveCompleted() {
	if m == nil {
		return
	}
	m.completedTasks.Inc()
}

func (m *EngineMetrics) ObserveFailed(reason string) {
	if m == nil {
		return
	}
	m.failedTasks.WithLabelValues(reason).Inc()
}

func (m *EngineMetrics) ObserveStoreOp(op string, err error) {
	if m == nil {
		return
	}
	m.storeOpsTotal.WithLabelValues(op).Inc()
	if err != nil {
		m.storeOpErrors.WithLabelValues(op).Inc()
	}
}
