// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command camfleetd runs the camera fleet daemon: health monitoring of every
// registered camera and the recording pipeline with retention.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/camfleet/internal/config"
	"github.com/ManuGH/camfleet/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// logOutput keeps logs off stdout so command output stays parseable.
var logOutput io.Writer = os.Stderr

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "camfleetd",
		Short:         "Camera fleet health monitor and recorder",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logOutput = cmd.ErrOrStderr()
			log.Configure(log.Config{Level: "info", Service: "camfleetd", Version: version, Output: logOutput})
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML)")

	root.AddCommand(
		newServeCmd(opts),
		newSweepCmd(opts),
		newProbeCmd(opts),
		newCheckConfigCmd(opts),
		newHealthcheckCmd(),
	)
	return root
}

// resolveConfigPath returns the explicit path, or <dataDir>/config.yaml when
// it exists, or empty for defaults and environment only.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA_DIR", config.Default().DataDir))
	if dataDir == "" {
		return ""
	}
	auto := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

// loadConfig loads the configuration and reconfigures the global logger
// from it.
func loadConfig(opts *rootOptions) (config.AppConfig, *config.Loader, error) {
	path := resolveConfigPath(opts.configPath)
	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	if err != nil {
		return cfg, loader, err
	}
	log.Reconfigure(log.Config{Level: cfg.Log.Level, Service: "camfleetd", Version: cfg.Version, Output: logOutput})

	logger := log.WithComponent("daemon")
	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str(log.FieldPath, path).
		Msg("configuration loaded")
	return cfg, loader, nil
}
