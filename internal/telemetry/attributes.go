// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys shared by the monitor and the recording orchestrator.
const (
	CameraIDKey     = "camera.id"
	CameraNameKey   = "camera.name"
	CameraStatusKey = "camera.status"

	TransitionFromKey = "transition.from"
	TransitionToKey   = "transition.to"

	RecordingIDKey      = "recording.id"
	RecordingFormatKey  = "recording.format"
	RecordingQualityKey = "recording.quality"
	RecordingStatusKey  = "recording.status"
	RecordingBytesKey   = "recording.bytes"

	RetentionDeletedKey = "retention.deleted"
	RetentionFreedKey   = "retention.freed_bytes"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// CameraAttributes identifies a camera. Empty names are omitted.
func CameraAttributes(id, name string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(CameraIDKey, id)}
	if name != "" {
		attrs = append(attrs, attribute.String(CameraNameKey, name))
	}
	return attrs
}

// TransitionAttributes describes a camera status change.
func TransitionAttributes(from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TransitionFromKey, from),
		attribute.String(TransitionToKey, to),
	}
}

// RecordingAttributes describes a recording request.
func RecordingAttributes(cameraID, format, quality string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CameraIDKey, cameraID),
		attribute.String(RecordingFormatKey, format),
		attribute.String(RecordingQualityKey, quality),
	}
}

// RecordingResultAttributes describes a finalized recording.
func RecordingResultAttributes(id, status string, bytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RecordingIDKey, id),
		attribute.String(RecordingStatusKey, status),
		attribute.Int64(RecordingBytesKey, bytes),
	}
}

// RetentionAttributes describes a retention sweep.
func RetentionAttributes(deleted int, freed int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(RetentionDeletedKey, deleted),
		attribute.Int64(RetentionFreedKey, freed),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
