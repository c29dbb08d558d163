// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	monitorProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_monitor_probes_total",
		Help: "Camera reachability probes by result",
	}, []string{"result"}) // result=success|failure|error

	monitorTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_monitor_transitions_total",
		Help: "Camera status transitions",
	}, []string{"from", "to"})

	monitorCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camfleet_monitor_cycle_duration_seconds",
		Help:    "Duration of a full health monitoring cycle",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	monitorCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camfleet_monitor_cycle_errors_total",
		Help: "Monitoring cycles aborted before probing (for example camera listing failed)",
	})

	camerasByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camfleet_cameras",
		Help: "Cameras by status after the last monitoring cycle",
	}, []string{"status"})
)

// IncProbe counts one probe result.
func IncProbe(result string) {
	monitorProbesTotal.WithLabelValues(result).Inc()
}

// IncTransition counts a camera status transition.
func IncTransition(from, to string) {
	monitorTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveCycle records how long a monitoring cycle took.
func ObserveCycle(d time.Duration) {
	monitorCycleDuration.Observe(d.Seconds())
}

// IncCycleError counts a monitoring cycle that failed before probing.
func IncCycleError() {
	monitorCycleErrors.Inc()
}

// SetCamerasByStatus replaces the per-status camera gauges.
func SetCamerasByStatus(counts map[string]int) {
	camerasByStatus.Reset()
	for status, n := range counts {
		camerasByStatus.WithLabelValues(status).Set(float64(n))
	}
}
