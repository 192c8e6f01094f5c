package corosock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "corosock"
	metricsSubsystem = "scheduler"
)

// schedulerMetrics holds the Prometheus collectors of one scheduler.
// All methods are safe to call on a nil receiver, which is how a
// scheduler without a Registerer runs.
type schedulerMetrics struct {
	tasksSpawned   prometheus.Counter
	resumptions    prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	queueDepth     prometheus.Gauge
}

func newSchedulerMetrics(reg prometheus.Registerer, name string) *schedulerMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"scheduler_name": name}

	return &schedulerMetrics{
		tasksSpawned: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "tasks_spawned_total",
			Help:        "Total number of tasks submitted or spawned",
			ConstLabels: labels,
		}),
		resumptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "resumptions_total",
			Help:        "Total number of single-step task resumptions",
			ConstLabels: labels,
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "tasks_completed_total",
			Help:        "Total number of tasks that finished without error",
			ConstLabels: labels,
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "tasks_failed_total",
			Help:        "Total number of tasks dropped after an error or panic",
			ConstLabels: labels,
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "queue_depth",
			Help:        "Number of tasks waiting in the ready queue",
			ConstLabels: labels,
		}),
	}
}

func (m *schedulerMetrics) spawned() {
	if m != nil {
		m.tasksSpawned.Inc()
	}
}

func (m *schedulerMetrics) resumed() {
	if m != nil {
		m.resumptions.Inc()
	}
}

func (m *schedulerMetrics) completed() {
	if m != nil {
		m.tasksCompleted.Inc()
	}
}

func (m *schedulerMetrics) failed() {
	if m != nil {
		m.tasksFailed.Inc()
	}
}

func (m *schedulerMetrics) depth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}
