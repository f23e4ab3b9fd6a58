package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dto "github.com/prometheus/client_model/go"
)

// Task outcome labels.
const (
	outcomeCompleted = "completed"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeRejected  = "rejected"
)

// Metrics collects pipeline counters on a private registry. Nothing is
// exported over HTTP here; callers pull from Gather when they want a
// report.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal  *prometheus.CounterVec
	dedupHits   prometheus.Counter
	queueDepth  prometheus.Gauge
	inFlight    prometheus.Gauge
	taskSeconds prometheus.Histogram
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papyrus",
			Subsystem: "ingestion",
			Name:      "tasks_total",
			Help:      "Ingestion tasks by final outcome.",
		}, []string{"outcome"}),
		dedupHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "papyrus",
			Subsystem: "ingestion",
			Name:      "dedup_hits_total",
			Help:      "Submissions skipped because identical content was already ingested or in flight.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "papyrus",
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Tasks waiting in the queue.",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "papyrus",
			Subsystem: "ingestion",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently being processed by workers.",
		}),
		taskSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "papyrus",
			Subsystem: "ingestion",
			Name:      "task_duration_seconds",
			Help:      "Wall time from dequeue to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// Gather returns the current metric families.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

func (m *Metrics) taskFinished(outcome string, seconds float64) {
	m.tasksTotal.WithLabelValues(outcome).Inc()
	m.taskSeconds.Observe(seconds)
}
