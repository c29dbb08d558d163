// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ManuGH/camfleet/internal/persistence"
	"github.com/ManuGH/camfleet/internal/validate"
)

var (
	logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	backends  = []string{persistence.BackendSQLite, persistence.BackendBadger, persistence.BackendMemory}
	exporters = []string{"grpc", "http"}
)

// Validate checks cfg and returns a validate.ValidationError listing every
// invalid field.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("log.level", strings.ToLower(cfg.Log.Level), logLevels)
	v.OneOf("storage.backend", cfg.Storage.Backend, backends)
	if cfg.Storage.Backend != persistence.BackendMemory {
		v.NotEmpty("storage.path", cfg.Storage.Path)
	}

	r := cfg.Recordings
	v.NotEmpty("recordings.dir", r.Dir)
	v.NotEmpty("recordings.thumbnailsDir", r.ThumbnailsDir)
	v.MinDuration("recordings.maxAge", r.MaxAge, time.Hour)
	v.MinDuration("recordings.retentionInterval", r.RetentionInterval, time.Minute)
	v.NonNegative("recordings.maxStorageBytes", r.MaxStorageBytes)
	v.FloatRange("recordings.warningThreshold", r.WarningThreshold, 0.01, 1)
	v.MinDuration("recordings.connectTimeout", r.ConnectTimeout, 100*time.Millisecond)

	m := cfg.Monitor
	v.MinDuration("monitor.interval", m.Interval, time.Second)
	v.MinDuration("monitor.offlineThreshold", m.OfflineThreshold, time.Second)
	v.MinDuration("monitor.errorBackoff", m.ErrorBackoff, time.Second)
	v.Range("monitor.concurrency", m.Concurrency, 1, 64)
	if m.ProbeRate <= 0 {
		v.AddError("monitor.probeRate", "must be positive", m.ProbeRate)
	}
	v.MinDuration("monitor.probeTimeout", m.ProbeTimeout, time.Second)

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	v.NotEmpty("ffmpeg.ffprobeBin", cfg.FFmpeg.FFprobeBin)

	if addr := cfg.Fanout.RedisAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			v.AddError("fanout.redisAddr", "must be host:port", addr)
		}
		v.Range("fanout.redisDb", cfg.Fanout.RedisDB, 0, 15)
	}

	if a := cfg.Archive; a.Enabled {
		v.NotEmpty("archive.bucket", a.Bucket)
		if a.Endpoint != "" {
			v.URL("archive.endpoint", a.Endpoint, []string{"http", "https"})
		}
		v.Positive("archive.workers", a.Workers)
		v.Positive("archive.queueSize", a.QueueSize)
	}

	v.ListenAddr("server.listen", cfg.Server.Listen)
	if cfg.Server.RateLimit < 0 {
		v.AddError("server.rateLimit", "must not be negative", cfg.Server.RateLimit)
	}

	if t := cfg.Telemetry; t.Enabled {
		v.OneOf("telemetry.exporter", t.Exporter, exporters)
		v.FloatRange("telemetry.sampleRate", t.SampleRate, 0, 1)
	}

	seen := make(map[string]struct{}, len(cfg.Cameras))
	for i, c := range cfg.Cameras {
		field := fmt.Sprintf("cameras[%d]", i)
		v.NotEmpty(field+".id", c.ID)
		v.StreamURL(field+".url", c.URL)
		if _, dup := seen[c.ID]; dup && c.ID != "" {
			v.AddError(field+".id", "duplicate camera id", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	return v.Err()
}
