// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camfleet/internal/validate"
)

func validConfig() AppConfig {
	cfg := Default()
	cfg.DataDir = "/srv/camfleet"
	cfg.Storage.Path = "/srv/camfleet/camfleet.db"
	cfg.Recordings.Dir = "/srv/camfleet/recordings"
	cfg.Recordings.ThumbnailsDir = "/srv/camfleet/thumbnails"
	return cfg
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	out := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		out = append(out, e.Field)
	}
	return out
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"unknown backend", func(c *AppConfig) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"bad log level", func(c *AppConfig) { c.Log.Level = "loud" }, "log.level"},
		{"threshold above one", func(c *AppConfig) { c.Recordings.WarningThreshold = 1.5 }, "recordings.warningThreshold"},
		{"negative quota", func(c *AppConfig) { c.Recordings.MaxStorageBytes = -1 }, "recordings.maxStorageBytes"},
		{"tiny interval", func(c *AppConfig) { c.Monitor.Interval = time.Millisecond }, "monitor.interval"},
		{"zero probe rate", func(c *AppConfig) { c.Monitor.ProbeRate = 0 }, "monitor.probeRate"},
		{"listen without port", func(c *AppConfig) { c.Server.Listen = "localhost" }, "server.listen"},
		{"archive without bucket", func(c *AppConfig) { c.Archive.Enabled = true }, "archive.bucket"},
		{"bad redis addr", func(c *AppConfig) { c.Fanout.RedisAddr = "redis" }, "fanout.redisAddr"},
		{"bad exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
		{"duplicate camera", func(c *AppConfig) {
			c.Cameras = []CameraConfig{
				{ID: "a", URL: "rtsp://h/1"},
				{ID: "a", URL: "rtsp://h/2"},
			}
		}, "cameras[1].id"},
		{"inline camera credentials", func(c *AppConfig) {
			c.Cameras = []CameraConfig{{ID: "a", URL: "rtsp://admin:pw@h/1"}}
		}, "cameras[0].url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, fieldsOf(t, err), tt.field)
		})
	}
}

func TestValidate_MemoryBackendNeedsNoPath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Path = ""
	assert.NoError(t, Validate(cfg))
}
