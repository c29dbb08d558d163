// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration: defaults, then a strict YAML
// file, then CAMFLEET_* environment overrides, then validation.
package config

import (
	"time"

	"github.com/ManuGH/camfleet/internal/persistence"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version    string           `yaml:"-"`
	DataDir    string           `yaml:"dataDir"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Recordings RecordingsConfig `yaml:"recordings"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Fanout     FanoutConfig     `yaml:"fanout"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	// Cameras are seeded into the store at startup when missing.
	Cameras []CameraConfig `yaml:"cameras,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Path is the database file (sqlite) or directory (badger).
	Path string `yaml:"path"`
}

type RecordingsConfig struct {
	Dir               string        `yaml:"dir"`
	ThumbnailsDir     string        `yaml:"thumbnailsDir"`
	MaxAge            time.Duration `yaml:"maxAge"`
	RetentionInterval time.Duration `yaml:"retentionInterval"`
	// MaxStorageBytes of 0 disables the quota.
	MaxStorageBytes  int64         `yaml:"maxStorageBytes"`
	WarningThreshold float64       `yaml:"warningThreshold"`
	ConnectTimeout   time.Duration `yaml:"connectTimeout"`
}

type MonitorConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	OfflineThreshold time.Duration `yaml:"offlineThreshold"`
	ErrorBackoff     time.Duration `yaml:"errorBackoff"`
	Concurrency      int           `yaml:"concurrency"`
	ProbeRate        float64       `yaml:"probeRate"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout"`
}

type FFmpegConfig struct {
	Bin         string        `yaml:"bin"`
	FFprobeBin  string        `yaml:"ffprobeBin"`
	KillTimeout time.Duration `yaml:"killTimeout"`
	UseH265     bool          `yaml:"useH265"`
}

type FanoutConfig struct {
	WebSocket      bool     `yaml:"websocket"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	RedisAddr      string   `yaml:"redisAddr"`
	RedisPassword  string   `yaml:"redisPassword"`
	RedisDB        int      `yaml:"redisDb"`
	ChannelPrefix  string   `yaml:"channelPrefix"`
}

type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UsePathStyle    bool   `yaml:"usePathStyle"`
	Workers         int    `yaml:"workers"`
	QueueSize       int    `yaml:"queueSize"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit       int           `yaml:"rateLimit"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate"`
}

type CameraConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Default returns the built-in configuration. Empty paths are derived from
// DataDir by the loader.
func Default() AppConfig {
	return AppConfig{
		DataDir: "data",
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Backend: persistence.BackendSQLite},
		Recordings: RecordingsConfig{
			MaxAge:            30 * 24 * time.Hour,
			RetentionInterval: time.Hour,
			WarningThreshold:  0.8,
			ConnectTimeout:    10 * time.Second,
		},
		Monitor: MonitorConfig{
			Enabled:          true,
			Interval:         5 * time.Minute,
			OfflineThreshold: 10 * time.Minute,
			ErrorBackoff:     60 * time.Second,
			Concurrency:      4,
			ProbeRate:        10,
			ProbeTimeout:     10 * time.Second,
		},
		FFmpeg: FFmpegConfig{
			Bin:         "ffmpeg",
			FFprobeBin:  "ffprobe",
			KillTimeout: 5 * time.Second,
		},
		Fanout: FanoutConfig{
			WebSocket:     true,
			ChannelPrefix: "camfleet:",
		},
		Archive: ArchiveConfig{
			Workers:   2,
			QueueSize: 64,
		},
		Server: ServerConfig{
			Listen:          ":8089",
			RateLimit:       120,
			ShutdownTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "grpc",
			ServiceName: "camfleetd",
			SampleRate:  1.0,
		},
	}
}
