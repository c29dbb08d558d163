// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/config"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/persistence"
)

// PerformStartupChecks validates the environment before the daemon starts.
// Missing directories are created; a missing ffmpeg is only a warning because
// recordings fall back to direct capture.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str(log.FieldEvent, "startup.checks_begin").Msg("running pre-flight startup checks")

	for _, dir := range []string{cfg.DataDir, cfg.Recordings.Dir, cfg.Recordings.ThumbnailsDir} {
		if err := ensureWritableDir(dir); err != nil {
			return fmt.Errorf("directory check failed: %w", err)
		}
	}
	logger.Info().Str(log.FieldPath, cfg.DataDir).Msg("data directories are writable")

	checkBinaries(logger, cfg.FFmpeg)

	if cfg.Storage.Backend == persistence.BackendMemory {
		logger.Warn().
			Str(log.FieldEvent, "startup.memory_store").
			Msg("in-memory store selected; cameras and recordings are lost on restart")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; recordings may be lost on reboot")
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func ensureWritableDir(path string) error {
	if path == "" {
		return fmt.Errorf("directory path is empty")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)
	return nil
}

func checkBinaries(logger zerolog.Logger, cfg config.FFmpegConfig) {
	for _, bin := range []string{cfg.Bin, cfg.FFprobeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn().
				Err(err).
				Str(log.FieldEvent, "startup.binary_missing").
				Str("binary", bin).
				Msg("media binary not found; related features are degraded")
			continue
		}
		logger.Info().Str("binary", bin).Msg("media binary available")
	}
}
