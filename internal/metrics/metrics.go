// Package metrics exposes scheduler counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the scheduler collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	tasksEnqueued prometheus.Counter
	taskOutcomes  *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	processing    prometheus.Gauge
	taskDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tasksEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_tasks_enqueued_total",
			Help: "Transcription tasks added to the queue",
		}),
		taskOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_task_outcomes_total",
			Help: "Finished transcription attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_queue_depth",
			Help: "Tasks currently queued, including paused ones",
		}),
		processing: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_processing",
			Help: "1 while a task is executing",
		}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_task_duration_seconds",
			Help:    "Wall time of transcription attempts",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"strategy"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskEnqueued() {
	if m == nil {
		return
	}
	m.tasksEnqueued.Inc()
}

func (m *Metrics) TaskFinished(strategy, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.taskOutcomes.WithLabelValues(strategy, outcome).Inc()
	m.taskDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetProcessing(active bool) {
	if m == nil {
		return
	}
	if active {
		m.processing.Set(1)
	} else {
		m.processing.Set(0)
	}
}
