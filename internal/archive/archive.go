// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package archive copies finished recordings to off-site object storage.
package archive

import (
	"context"
	"path"

	"github.com/ManuGH/camfleet/internal/domain/recording"
)

// KeyPrefix is the object prefix all recordings are stored under.
const KeyPrefix = "recordings"

// Uploader stores one finished recording.
type Uploader interface {
	Upload(ctx context.Context, rec recording.Recording) error
}

// Nop discards uploads.
type Nop struct{}

func (Nop) Upload(context.Context, recording.Recording) error { return nil }

// Key returns recordings/{cameraId}/{recordingId}.{ext}.
func Key(rec recording.Recording) string {
	return path.Join(KeyPrefix, rec.CameraID, rec.ID+"."+rec.Format.Extension())
}
