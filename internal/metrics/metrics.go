// Package metrics exports task processing counters and latencies in
// Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the Prometheus collectors for the task pipeline
type Recorder struct {
	registry *prometheus.Registry

	tasksReceived  *prometheus.CounterVec
	tasksDone      *prometheus.CounterVec
	tasksPublished *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	tasksInFlight  prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry
func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tasksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_received_total",
			Help:      "Task messages consumed from the work queue.",
		}, []string{"task_type"}),
		tasksDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_done_total",
			Help:      "Tasks finished, partitioned by outcome.",
		}, []string{"task_type", "outcome"}),
		tasksPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_published_total",
			Help:      "Task messages published to the work queue.",
		}, []string{"task_type"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall-clock task processing time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_type"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks currently being processed.",
		}),
	}

	r.registry.MustRegister(
		r.tasksReceived,
		r.tasksDone,
		r.tasksPublished,
		r.taskDuration,
		r.tasksInFlight,
	)

	return r
}

// Registry returns the registry for promhttp exposition
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// TaskReceived counts a consumed task message
func (r *Recorder) TaskReceived(taskType string) {
	r.tasksReceived.WithLabelValues(taskType).Inc()
}

// TaskDone counts a finished task and observes its duration
func (r *Recorder) TaskDone(taskType, outcome string, duration time.Duration) {
	r.tasksDone.WithLabelValues(taskType, outcome).Inc()
	r.taskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// TaskPublished counts a task message published to the work queue
func (r *Recorder) TaskPublished(taskType string) {
	r.tasksPublished.WithLabelValues(taskType).Inc()
}

// InFlightAdd adjusts the in-flight gauge
func (r *Recorder) InFlightAdd(delta float64) {
	r.tasksInFlight.Add(delta)
}
