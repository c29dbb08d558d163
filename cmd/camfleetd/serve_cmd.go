// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/camfleet/internal/app"
	"github.com/ManuGH/camfleet/internal/config"
	"github.com/ManuGH/camfleet/internal/health"
	"github.com/ManuGH/camfleet/internal/log"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		Long:  "Run camera monitoring, the recording pipeline with retention, and the ops server until SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, loader, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := log.WithComponent("daemon")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	logger.Info().
		Str(log.FieldEvent, "daemon.start").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("config_sha256", fingerprint(cfg)).
		Str("backend", cfg.Storage.Backend).
		Int("cameras", len(cfg.Cameras)).
		Msg("starting camfleetd")

	a, err := app.New(ctx, config.NewHolder(cfg, loader))
	if err != nil {
		return fmt.Errorf("wire daemon: %w", err)
	}
	return a.Run(ctx)
}

// fingerprint hashes the effective configuration with secrets removed.
func fingerprint(cfg config.AppConfig) string {
	cfg.Archive.SecretAccessKey = ""
	cfg.Fanout.RedisPassword = ""
	cams := make([]config.CameraConfig, len(cfg.Cameras))
	for i, c := range cfg.Cameras {
		c.Password = ""
		cams[i] = c
	}
	cfg.Cameras = cams
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return "unknown"
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
