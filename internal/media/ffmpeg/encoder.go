// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg drives the external ffmpeg and ffprobe binaries: live stream
// encoding into a file, thumbnails, media info and format conversion.
package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/log"
)

const (
	availabilityTimeout = 5 * time.Second
	encodersTimeout     = 5 * time.Second
	thumbnailTimeout    = 30 * time.Second
	mediaInfoTimeout    = 10 * time.Second
	convertTimeout      = 300 * time.Second

	defaultKillTimeout = 5 * time.Second
	stderrRingLines    = 200
	maxStderrLine      = 64 * 1024
)

// Config selects binaries and shutdown behaviour.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// KillTimeout is the SIGTERM grace before SIGKILL in Handle.Terminate.
	KillTimeout time.Duration
	// UseH265 selects HEVC encoders instead of H.264.
	UseH265 bool
}

// Encoder invokes ffmpeg. The zero value is not usable; call New.
type Encoder struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	availDone bool
	available bool
	hwDone    bool
	hw        HWAccel
}

// New creates an Encoder. Empty paths fall back to "ffmpeg" and "ffprobe" on PATH.
func New(cfg Config) *Encoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = defaultKillTimeout
	}
	return &Encoder{
		cfg:    cfg,
		logger: log.WithComponent("ffmpeg"),
	}
}

// Available reports whether `ffmpeg -version` succeeds. The first result is
// cached unless ctx ended before the check completed.
func (e *Encoder) Available(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.availableLocked(ctx)
}

func (e *Encoder) availableLocked(ctx context.Context) bool {
	if e.availDone {
		return e.available
	}
	code, err := e.runBounded(ctx, availabilityTimeout, e.cfg.FFmpegPath, "-version")
	if ctx.Err() != nil {
		return false
	}
	e.available = err == nil && code == 0
	e.availDone = true
	if !e.available {
		e.logger.Info().Err(err).Str(log.FieldEvent, "ffmpeg.unavailable").Str("bin", e.cfg.FFmpegPath).Msg("ffmpeg not available, recordings use raw capture")
	}
	return e.available
}

// runBounded runs bin with args under timeout and returns the exit code.
// The whole process group is killed when the timeout fires.
func (e *Encoder) runBounded(ctx context.Context, timeout time.Duration, bin string, args ...string) (int, error) {
	_, code, err := e.outputBounded(ctx, timeout, bin, args...)
	return code, err
}

func (e *Encoder) outputBounded(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := boundedCommand(ctx, bin, args...)
	out, err := cmd.Output()
	if ctx.Err() != nil {
		return out, -1, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, exitErr.ExitCode(), nil
		}
		return out, -1, err
	}
	return out, 0, nil
}
