// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Example renders the default configuration as YAML.
func Example() ([]byte, error) {
	cfg := Default()
	cfg.Cameras = []CameraConfig{{
		ID:   "front-door",
		Name: "Front door",
		URL:  "rtsp://192.168.1.20:554/stream1",
	}}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal example config: %w", err)
	}
	return out, nil
}

// WriteExample atomically writes the example configuration to path.
func WriteExample(path string) error {
	data, err := Example()
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	return nil
}
