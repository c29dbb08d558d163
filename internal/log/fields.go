// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCameraID      = "camera_id"
	FieldCameraName    = "camera_name"
	FieldRecordingID   = "recording_id"
	FieldCorrelationID = "correlation_id"
	FieldTraceID       = "trace_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"

	// Media fields
	FieldFormat  = "format"
	FieldQuality = "quality"
	FieldEncoder = "encoder"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldChannel = "channel"
)
