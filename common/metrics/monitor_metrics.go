package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "distributed_evaluation"
)

// MonitorMetrics are the metrics recorded by the master's Monitor.
//
// All methods are safe to call on a nil *MonitorMetrics, in which case they do nothing.
type MonitorMetrics struct {
	// JobsScheduled counts jobs placed on a connection's queue, including rescheduled jobs.
	JobsScheduled prometheus.Counter

	// JobsCompleted counts jobs whose results were merged back.
	JobsCompleted prometheus.Counter

	// JobsRescheduled counts jobs that were moved off of a failed connection.
	JobsRescheduled prometheus.Counter

	// JobsDiscarded counts jobs that were still outstanding when the Monitor shut down.
	JobsDiscarded prometheus.Counter

	// IndividualsEvaluated counts individuals whose fitness was merged back.
	IndividualsEvaluated prometheus.Counter

	// ConnectionFailures counts worker connections that failed (as opposed to being shut down).
	ConnectionFailures prometheus.Counter

	// RegisteredConnections is the number of currently-registered worker connections.
	RegisteredConnections prometheus.Gauge

	// QueueDepthGaugeVec is the number of jobs queued on each connection. Requires the "connection" label.
	QueueDepthGaugeVec *prometheus.GaugeVec

	// JobLatencySeconds is the time between a job's creation and the merge of its results.
	JobLatencySeconds prometheus.Histogram
}

// NewMonitorMetrics creates a new set of MonitorMetrics labelled with the given node ID.
func NewMonitorMetrics(nodeId string) *MonitorMetrics {
	labels := prometheus.Labels{"node_id": nodeId}

	counter := func(name string, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	return &MonitorMetrics{
		JobsScheduled:        counter("jobs_scheduled_total", "Jobs placed on a worker connection's queue."),
		JobsCompleted:        counter("jobs_completed_total", "Jobs whose results were merged back."),
		JobsRescheduled:      counter("jobs_rescheduled_total", "Jobs moved off of a failed worker connection."),
		JobsDiscarded:        counter("jobs_discarded_total", "Jobs still outstanding at shutdown."),
		IndividualsEvaluated: counter("individuals_evaluated_total", "Individuals whose fitness was merged back."),
		ConnectionFailures:   counter("connection_failures_total", "Worker connections that failed."),
		RegisteredConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "registered_connections",
			Help:        "Currently-registered worker connections.",
			ConstLabels: labels,
		}),
		QueueDepthGaugeVec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connection_queue_depth",
			Help:        "Jobs queued on each worker connection.",
			ConstLabels: labels,
		}, []string{"connection"}),
		JobLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "job_latency_seconds",
			Help:        "Time between a job's creation and the merge of its results.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

// Register registers every metric with reg.
func (m *MonitorMetrics) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		m.JobsScheduled, m.JobsCompleted, m.JobsRescheduled, m.JobsDiscarded, m.IndividualsEvaluated,
		m.ConnectionFailures, m.RegisteredConnections, m.QueueDepthGaugeVec, m.JobLatencySeconds,
	} {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func (m *MonitorMetrics) JobScheduled(connection string, queueDepth int) {
	if m == nil {
		return
	}

	m.JobsScheduled.Inc()
	m.QueueDepthGaugeVec.WithLabelValues(connection).Set(float64(queueDepth))
}

// JobCompleted records the merge of a job's results. An empty connection name leaves the queue-depth gauges
// untouched, which is used when the owning connection has already been unregistered.
func (m *MonitorMetrics) JobCompleted(connection string, queueDepth int, numIndividuals int, latency time.Duration) {
	if m == nil {
		return
	}

	m.JobsCompleted.Inc()
	m.IndividualsEvaluated.Add(float64(numIndividuals))
	m.JobLatencySeconds.Observe(latency.Seconds())

	if connection != "" {
		m.QueueDepthGaugeVec.WithLabelValues(connection).Set(float64(queueDepth))
	}
}

func (m *MonitorMetrics) JobRescheduled() {
	if m == nil {
		return
	}

	m.JobsRescheduled.Inc()
}

func (m *MonitorMetrics) JobDiscarded() {
	if m == nil {
		return
	}

	m.JobsDiscarded.Inc()
}

func (m *MonitorMetrics) ConnectionRegistered() {
	if m == nil {
		return
	}

	m.RegisteredConnections.Inc()
}

func (m *MonitorMetrics) ConnectionUnregistered(connection string, failed bool) {
	if m == nil {
		return
	}

	m.RegisteredConnections.Dec()
	m.QueueDepthGaugeVec.DeleteLabelValues(connection)
	if failed {
		m.ConnectionFailures.Inc()
	}
}
