package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for job processing.
type Metrics struct {
	processed  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth *prometheus.GaugeVec
}

// NewMetrics builds and registers the worker metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quern_jobs_processed_total",
				Help: "Jobs processed, by task and outcome.",
			},
			[]string{"task", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quern_job_duration_seconds",
				Help:    "Job execution duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quern_queue_depth",
				Help: "Number of jobs waiting in each queue.",
			},
			[]string{"queue"},
		),
	}
	reg.MustRegister(m.processed, m.duration, m.queueDepth)
	return m
}

// CountJob records a processed job outcome: success, failure or retry.
func (m *Metrics) CountJob(task, status string) {
	m.processed.WithLabelValues(task, status).Inc()
}

// ObserveDuration records how long a job attempt took.
func (m *Metrics) ObserveDuration(task string, d time.Duration) {
	m.duration.WithLabelValues(task).Observe(d.Seconds())
}

// SetQueueDepth records the current queue depth.
func (m *Metrics) SetQueueDepth(queue string, depth int64) {
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}
