/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package sessionlimit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-llmkit/internal/libinfo"
)

// MetricsCollector represents a collector of metrics to analyze limiter utilization.
type MetricsCollector interface {
	// SetOccupancy sets the number of currently held sessions.
	SetOccupancy(int)

	// SetQueueLen sets the number of queued waiters.
	SetQueueLen(int)

	// IncAcquiredTotal increments the total number of admitted sessions.
	IncAcquiredTotal()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the session limiter.
type PrometheusMetrics struct {
	Occupancy     prometheus.Gauge
	QueueLen      prometheus.Gauge
	AcquiredTotal prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	opts.ConstLabels = libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels)
	occupancy := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Name:        "session_limit_occupancy",
		Help:        "Number of currently held LLM sessions.",
		ConstLabels: opts.ConstLabels,
	})
	queueLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Name:        "session_limit_queue_length",
		Help:        "Number of callers waiting for a free session slot.",
		ConstLabels: opts.ConstLabels,
	})
	acquiredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Name:        "session_limit_acquired_total",
		Help:        "Total number of admitted sessions.",
		ConstLabels: opts.ConstLabels,
	})
	return &PrometheusMetrics{
		Occupancy:     occupancy,
		QueueLen:      queueLen,
		AcquiredTotal: acquiredTotal,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.Occupancy,
		pm.QueueLen,
		pm.AcquiredTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Occupancy)
	prometheus.Unregister(pm.QueueLen)
	prometheus.Unregister(pm.AcquiredTotal)
}

// SetOccupancy sets the number of currently held sessions.
func (pm *PrometheusMetrics) SetOccupancy(n int) {
	pm.Occupancy.Set(float64(n))
}

// SetQueueLen sets the number of queued waiters.
func (pm *PrometheusMetrics) SetQueueLen(n int) {
	pm.QueueLen.Set(float64(n))
}

// IncAcquiredTotal increments the total number of admitted sessions.
func (pm *PrometheusMetrics) IncAcquiredTotal() {
	pm.AcquiredTotal.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetOccupancy(int)  {}
func (disabledMetrics) SetQueueLen(int)   {}
func (disabledMetrics) IncAcquiredTotal() {}

var disabledMetricsCollector = disabledMetrics{}
