// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camfleet_http_request_duration_seconds",
		Help:    "Ops HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camfleet_http_requests_in_flight",
		Help: "Current number of ops HTTP requests being served",
	})

	httpRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camfleet_http_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limit",
	})
)

// ObserveHTTP records one finished request. route is the chi pattern, not the raw path.
func ObserveHTTP(method, route, status string, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// HTTPInFlight adjusts the in-flight gauge by delta.
func HTTPInFlight(delta float64) {
	httpRequestsInFlight.Add(delta)
}

// IncRateLimited counts a 429 response.
func IncRateLimited() {
	httpRateLimited.Inc()
}
