// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_proc_terminate_total",
		Help: "Signals sent to external process groups by outcome",
	}, []string{"signal", "outcome"}) // outcome=sent|error

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_proc_wait_total",
		Help: "Process wait results after termination",
	}, []string{"result"})

	ffmpegStartTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camfleet_ffmpeg_process_start_total",
		Help: "Total number of ffmpeg processes started",
	})

	ffmpegExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_ffmpeg_process_exit_total",
		Help: "ffmpeg process exits by reason",
	}, []string{"reason"}) // reason=success|error|signal
)

// IncProcTerminate counts a signal sent to a process group.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait counts the wait result of a terminated process.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}

// IncFFmpegStart counts a started ffmpeg process.
func IncFFmpegStart() {
	ffmpegStartTotal.Inc()
}

// IncFFmpegExit counts an ffmpeg exit by reason.
func IncFFmpegExit(reason string) {
	ffmpegExitTotal.WithLabelValues(reason).Inc()
}
