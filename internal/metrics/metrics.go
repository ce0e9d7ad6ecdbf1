package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PipelineRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_pipeline_requests_total",
			Help: "Total number of pipeline invocations.",
		},
	)

	PipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_pipeline_failures_total",
			Help: "Total number of failed pipeline invocations by stage.",
		},
		[]string{"stage"}, // validate, transform, decide, dispatch, record
	)

	PipelineLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_pipeline_latency_seconds",
			Help:    "End-to-end pipeline latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_dispatch_total",
			Help: "Total number of receiver dispatches by receiver and status.",
		},
		[]string{"receiver", "status"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_retries_total",
			Help: "Total number of message retries scheduled by topic.",
		},
		[]string{"topic"},
	)

	DLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_dlq_total",
			Help: "Total number of messages dead-lettered by topic.",
		},
		[]string{"topic"},
	)

	NodeExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_node_executions_total",
			Help: "Total number of node executions by node type, mode and status.",
		},
		[]string{"node_type", "mode", "status"},
	)

	QueueBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_queue_backlog",
			Help: "Number of messages waiting in a queue topic.",
		},
		[]string{"topic"},
	)
)

// MustRegister registers all collectors on the given registry.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		PipelineRequestsTotal,
		PipelineFailuresTotal,
		PipelineLatency,
		DispatchTotal,
		RetriesTotal,
		DLQTotal,
		NodeExecutionsTotal,
		QueueBacklog,
	)
}

// RecordPipeline records one pipeline invocation outcome. Metrics emission is
// fire-and-forget: it never returns an error into pipeline control flow.
func RecordPipeline(latency time.Duration, failedStage string) {
	PipelineRequestsTotal.Inc()
	PipelineLatency.Observe(latency.Seconds())
	if failedStage != "" {
		PipelineFailuresTotal.WithLabelValues(failedStage).Inc()
	}
}

// RecordDispatch records one receiver dispatch result.
func RecordDispatch(receiver string, success bool) {
	status := "ok"
	if !success {
		status = "failed"
	}
	DispatchTotal.WithLabelValues(receiver, status).Inc()
}

// RecordRetry records a scheduled redelivery for a topic.
func RecordRetry(topic string) {
	RetriesTotal.WithLabelValues(topic).Inc()
}

// RecordDLQ records a dead-lettered message for a topic.
func RecordDLQ(topic string) {
	DLQTotal.WithLabelValues(topic).Inc()
}

// RecordNodeExecution records one node execution.
func RecordNodeExecution(nodeType string, emulated, success bool) {
	mode := "production"
	if emulated {
		mode = "emulation"
	}
	status := "ok"
	if !success {
		status = "failed"
	}
	NodeExecutionsTotal.WithLabelValues(nodeType, mode, status).Inc()
}

// UpdateQueueBacklog updates the backlog gauge for a topic.
func UpdateQueueBacklog(topic string, depth float64) {
	QueueBacklog.WithLabelValues(topic).Set(depth)
}
