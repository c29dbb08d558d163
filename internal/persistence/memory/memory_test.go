// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package memory

import (
	"testing"

	"github.com/ManuGH/camfleet/internal/persistence/storetest"
)

func TestCameraStore(t *testing.T) {
	storetest.CameraStore(t, New().Cameras())
}

func TestRecordingStore(t *testing.T) {
	storetest.RecordingStore(t, New().Recordings())
}

func TestEventAndNotificationStore(t *testing.T) {
	storetest.EventAndNotificationStore(t, New())
}
