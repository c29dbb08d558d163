// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/camfleet/internal/persistence"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means defaults and env only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, possibly empty.
func (l *Loader) Path() string {
	if l == nil {
		return ""
	}
	return l.configPath
}

// Load builds the configuration: defaults, strict file, env, derived paths,
// validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	l.mergeEnv(&cfg)

	if err := resolvePaths(&cfg); err != nil {
		return cfg, err
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// UnknownEnvKeys lists CAMFLEET_* variables in the environment that no
// setting reads.
func (l *Loader) UnknownEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

// decodeStrict decodes one YAML document over cfg and rejects unknown keys.
func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

func (l *Loader) env(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString(l.env("DATA_DIR"), cfg.DataDir)
	cfg.Log.Level = ParseString(l.env("LOG_LEVEL"), cfg.Log.Level)

	cfg.Storage.Backend = ParseString(l.env("STORAGE_BACKEND"), cfg.Storage.Backend)
	cfg.Storage.Path = ParseString(l.env("STORAGE_PATH"), cfg.Storage.Path)

	r := &cfg.Recordings
	r.Dir = ParseString(l.env("RECORDINGS_DIR"), r.Dir)
	r.ThumbnailsDir = ParseString(l.env("THUMBNAILS_DIR"), r.ThumbnailsDir)
	r.MaxAge = ParseDuration(l.env("RECORDINGS_MAX_AGE"), r.MaxAge)
	r.RetentionInterval = ParseDuration(l.env("RETENTION_INTERVAL"), r.RetentionInterval)
	r.MaxStorageBytes = ParseInt64(l.env("RECORDINGS_MAX_STORAGE_BYTES"), r.MaxStorageBytes)
	r.WarningThreshold = ParseFloat(l.env("STORAGE_WARNING_THRESHOLD"), r.WarningThreshold)
	r.ConnectTimeout = ParseDuration(l.env("CONNECT_TIMEOUT"), r.ConnectTimeout)

	m := &cfg.Monitor
	m.Enabled = ParseBool(l.env("MONITOR_ENABLED"), m.Enabled)
	m.Interval = ParseDuration(l.env("MONITOR_INTERVAL"), m.Interval)
	m.OfflineThreshold = ParseDuration(l.env("OFFLINE_THRESHOLD"), m.OfflineThreshold)
	m.ErrorBackoff = ParseDuration(l.env("MONITOR_ERROR_BACKOFF"), m.ErrorBackoff)
	m.Concurrency = ParseInt(l.env("MONITOR_CONCURRENCY"), m.Concurrency)
	m.ProbeRate = ParseFloat(l.env("PROBE_RATE"), m.ProbeRate)
	m.ProbeTimeout = ParseDuration(l.env("PROBE_TIMEOUT"), m.ProbeTimeout)

	f := &cfg.FFmpeg
	f.Bin = ParseString(l.env("FFMPEG_BIN"), f.Bin)
	f.FFprobeBin = ParseString(l.env("FFPROBE_BIN"), f.FFprobeBin)
	f.KillTimeout = ParseDuration(l.env("FFMPEG_KILL_TIMEOUT"), f.KillTimeout)
	f.UseH265 = ParseBool(l.env("FFMPEG_H265"), f.UseH265)

	o := &cfg.Fanout
	o.WebSocket = ParseBool(l.env("WEBSOCKET"), o.WebSocket)
	o.AllowedOrigins = ParseList(l.env("ALLOWED_ORIGINS"), o.AllowedOrigins)
	o.RedisAddr = ParseString(l.env("REDIS_ADDR"), o.RedisAddr)
	o.RedisPassword = ParseString(l.env("REDIS_PASSWORD"), o.RedisPassword)
	o.RedisDB = ParseInt(l.env("REDIS_DB"), o.RedisDB)
	o.ChannelPrefix = ParseString(l.env("FANOUT_PREFIX"), o.ChannelPrefix)

	a := &cfg.Archive
	a.Enabled = ParseBool(l.env("ARCHIVE_ENABLED"), a.Enabled)
	a.Bucket = ParseString(l.env("ARCHIVE_BUCKET"), a.Bucket)
	a.Region = ParseString(l.env("ARCHIVE_REGION"), a.Region)
	a.Endpoint = ParseString(l.env("ARCHIVE_ENDPOINT"), a.Endpoint)
	a.AccessKeyID = ParseString(l.env("ARCHIVE_ACCESS_KEY_ID"), a.AccessKeyID)
	a.SecretAccessKey = ParseString(l.env("ARCHIVE_SECRET_ACCESS_KEY"), a.SecretAccessKey)
	a.UsePathStyle = ParseBool(l.env("ARCHIVE_PATH_STYLE"), a.UsePathStyle)

	s := &cfg.Server
	s.Listen = ParseString(l.env("LISTEN"), s.Listen)
	s.RateLimit = ParseInt(l.env("RATE_LIMIT"), s.RateLimit)
	s.ShutdownTimeout = ParseDuration(l.env("SHUTDOWN_TIMEOUT"), s.ShutdownTimeout)

	t := &cfg.Telemetry
	t.Enabled = ParseBool(l.env("TELEMETRY_ENABLED"), t.Enabled)
	t.Exporter = ParseString(l.env("OTLP_EXPORTER"), t.Exporter)
	t.Endpoint = ParseString(l.env("OTLP_ENDPOINT"), t.Endpoint)
	t.Insecure = ParseBool(l.env("OTLP_INSECURE"), t.Insecure)
	t.SampleRate = ParseFloat(l.env("TELEMETRY_SAMPLE_RATE"), t.SampleRate)
}

// resolvePaths makes DataDir absolute and derives unset paths from it.
func resolvePaths(cfg *AppConfig) error {
	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = abs

	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case persistence.BackendBadger:
			cfg.Storage.Path = filepath.Join(abs, "badger")
		case persistence.BackendMemory:
		default:
			cfg.Storage.Path = filepath.Join(abs, "camfleet.db")
		}
	}
	if cfg.Recordings.Dir == "" {
		cfg.Recordings.Dir = filepath.Join(abs, "recordings")
	}
	if cfg.Recordings.ThumbnailsDir == "" {
		cfg.Recordings.ThumbnailsDir = filepath.Join(abs, "thumbnails")
	}
	return nil
}
