// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import "errors"

// Failure kinds returned by the recording lifecycle. Callers match them with errors.Is.
var (
	ErrAlreadyRecording    = errors.New("camera is already recording")
	ErrNoActiveRecording   = errors.New("no active recording for camera")
	ErrInsufficientStorage = errors.New("insufficient storage for recording")
	ErrConnectionTimeout   = errors.New("stream source did not connect in time")
	ErrProcessFailure      = errors.New("encoder process failed")
	ErrPersistence         = errors.New("recording store rejected write")
	ErrUnsupported         = errors.New("operation not supported for this recording")
	ErrClosed              = errors.New("recording orchestrator is closed")
)

// ErrNotFound is returned by stores when updating or deleting an unknown recording.
var ErrNotFound = errors.New("recording not found")
