// Package metrics provides internal Prometheus metrics collection for the
// workflow engine. This package is internal and should not be imported by
// external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the engine's Prometheus instruments. Metrics are
// registered on the default registerer under the given namespace, so each
// process should create at most one Collector per namespace.
type Collector struct {
	workflowExecutionsTotal *prometheus.CounterVec
	workflowDuration        *prometheus.HistogramVec
	nodeExecutionsTotal     *prometheus.CounterVec
	nodeDuration            *prometheus.HistogramVec
	nodeRetriesTotal        *prometheus.CounterVec
	layerWidth              prometheus.Histogram
	runningWorkflows        prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates and registers the engine metrics under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.workflowExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of workflow executions by terminal status",
		},
		[]string{"status"},
	)

	c.workflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"status"},
	)

	c.nodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions by node type and terminal status",
		},
		[]string{"node_type", "status"},
	)

	c.nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node_type"},
	)

	c.nodeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_retries_total",
			Help:      "Total number of node retry attempts",
		},
		[]string{"node_type"},
	)

	c.layerWidth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_layer_width",
			Help:      "Number of nodes launched concurrently per execution layer",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		},
	)

	c.runningWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_workflows",
			Help:      "Number of workflow executions currently in flight",
		},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// WorkflowStarted records the start of a workflow run.
func (c *Collector) WorkflowStarted() {
	if c == nil {
		return
	}
	c.runningWorkflows.Inc()
}

// WorkflowFinished records the terminal status and duration of a run.
func (c *Collector) WorkflowFinished(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runningWorkflows.Dec()
	c.workflowExecutionsTotal.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// NodeFinished records the terminal status and duration of a node.
func (c *Collector) NodeFinished(nodeType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.nodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// NodeRetried records one retry attempt for a node type.
func (c *Collector) NodeRetried(nodeType string) {
	if c == nil {
		return
	}
	c.nodeRetriesTotal.WithLabelValues(nodeType).Inc()
}

// LayerLaunched records the width of an execution layer.
func (c *Collector) LayerLaunched(width int) {
	if c == nil {
		return
	}
	c.layerWidth.Observe(float64(width))
}
