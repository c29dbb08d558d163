// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fanoutBroadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_fanout_broadcast_total",
		Help: "Real-time broadcasts by transport and outcome",
	}, []string{"transport", "outcome"}) // outcome=ok|error|dropped

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camfleet_ws_clients",
		Help: "Connected WebSocket subscribers",
	})

	sinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_sink_failures_total",
		Help: "Failed fire-and-forget side effects by kind",
	}, []string{"kind"}) // kind=persist|broadcast|event|notification
)

// IncBroadcast counts a broadcast attempt.
func IncBroadcast(transport, outcome string) {
	fanoutBroadcastTotal.WithLabelValues(transport, outcome).Inc()
}

// SetWSClients sets the number of connected WebSocket clients.
func SetWSClients(n int) {
	wsClients.Set(float64(n))
}

// IncSinkFailure counts a failed side effect.
func IncSinkFailure(kind string) {
	sinkFailuresTotal.WithLabelValues(kind).Inc()
}
