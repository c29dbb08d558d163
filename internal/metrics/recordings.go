// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordingsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camfleet_recordings_active",
		Help: "Number of recording sessions currently registered",
	})

	recordingsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_recordings_started_total",
		Help: "Recording sessions started by capture path",
	}, []string{"path"}) // path=encoder|fallback

	recordingsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_recordings_finished_total",
		Help: "Recording sessions finalized by terminal status",
	}, []string{"status"})

	admissionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_recording_admission_rejected_total",
		Help: "Recording start attempts rejected before a session was created",
	}, []string{"reason"}) // reason=already_recording|insufficient_storage|connection_timeout|persistence

	retentionDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camfleet_retention_deleted_total",
		Help: "Recordings deleted by the retention sweep",
	})

	retentionFreedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camfleet_retention_freed_bytes_total",
		Help: "Bytes freed by the retention sweep",
	})

	archiveUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfleet_archive_uploads_total",
		Help: "Archive uploads of finished recordings by outcome",
	}, []string{"outcome"}) // outcome=success|failure|dropped
)

// SetRecordingsActive sets the number of registered sessions.
func SetRecordingsActive(n int) {
	recordingsActive.Set(float64(n))
}

// IncRecordingStarted counts a started session.
func IncRecordingStarted(path string) {
	recordingsStartedTotal.WithLabelValues(path).Inc()
}

// IncRecordingFinished counts a finalized session.
func IncRecordingFinished(status string) {
	recordingsFinishedTotal.WithLabelValues(status).Inc()
}

// IncAdmissionRejected counts a rejected start attempt.
func IncAdmissionRejected(reason string) {
	admissionRejectedTotal.WithLabelValues(reason).Inc()
}

// AddRetentionDeleted records one retention sweep outcome.
func AddRetentionDeleted(count int, freed int64) {
	retentionDeletedTotal.Add(float64(count))
	if freed > 0 {
		retentionFreedBytes.Add(float64(freed))
	}
}

// IncArchiveUpload counts an archive upload outcome.
func IncArchiveUpload(outcome string) {
	archiveUploadsTotal.WithLabelValues(outcome).Inc()
}
