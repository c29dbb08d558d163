// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recordings

import (
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/camfleet/internal/domain/recording"
)

// Sidecar is the metadata document stored next to a finished recording.
type Sidecar struct {
	Recording recording.Recording `json:"recording"`
	MediaInfo map[string]string   `json:"mediaInfo,omitempty"`
}

func sidecarPath(mediaPath string) string {
	return mediaPath + ".json"
}

func writeSidecar(rec recording.Recording, info map[string]string) error {
	if rec.FilePath == "" {
		return nil
	}
	b, err := json.MarshalIndent(Sidecar{Recording: rec, MediaInfo: info}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := renameio.WriteFile(sidecarPath(rec.FilePath), b, 0o640); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}
