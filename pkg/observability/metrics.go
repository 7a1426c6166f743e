// Package observability provides logging and metrics for notebooklets.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics namespace for all notebooklet metrics.
const metricsNamespace = "notebooklets"

// Run metrics.
var (
	// RunsTotal counts notebooklet runs by path and status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Total number of notebooklet runs",
		},
		[]string{"notebooklet", "status"},
	)

	// RunDuration measures notebooklet run duration in seconds.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of notebooklet runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"notebooklet"},
	)
)

// Registry metrics.
var (
	// RegistrySize tracks the number of registered notebooklets.
	RegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registry_size",
			Help:      "Number of notebooklets in the registry",
		},
	)
)

func init() {
	// Register all metrics with the default registry.
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		RegistrySize,
	)
}

// ObserveRun records the outcome and duration of one notebooklet run.
func ObserveRun(notebooklet string, started time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	RunsTotal.WithLabelValues(notebooklet, status).Inc()
	RunDuration.WithLabelValues(notebooklet).Observe(time.Since(started).Seconds())
}
