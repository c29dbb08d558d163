// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/metrics"
	"github.com/ManuGH/camfleet/internal/procgroup"
)

// Handle supervises one running ffmpeg process.
type Handle struct {
	cmd         *exec.Cmd
	ring        *LineRing
	started     time.Time
	killTimeout time.Duration
	logger      zerolog.Logger

	ioWg sync.WaitGroup
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
	ended    time.Time
}

// Encode starts ffmpeg for req and returns once the process is running.
// The process lives until it exits or the handle is killed; ctx only scopes startup.
func (e *Encoder) Encode(ctx context.Context, req EncodeRequest) (*Handle, error) {
	if req.Output == "" {
		return nil, errors.New("encode: output path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hw := e.DetectHardware(ctx)
	args := BuildEncodeArgs(req, hw, e.cfg.UseH265)

	e.logger.Info().
		Str(log.FieldEvent, "ffmpeg.encode_start").
		Str("url", camera.RedactedURL(req.StreamURL)).
		Str(log.FieldPath, req.Output).
		Str(log.FieldFormat, string(req.Format)).
		Str(log.FieldQuality, string(req.Quality)).
		Msg("starting encoder")

	return e.start(e.cfg.FFmpegPath, args, filepath.Dir(absPath(req.Output)))
}

func (e *Encoder) start(bin string, args []string, dir string) (*Handle, error) {
	cmd := exec.Command(bin, args...) // #nosec G204 -- binary comes from config, args are built by BuildEncodeArgs
	procgroup.Set(cmd)
	cmd.Dir = dir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("encode: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		metrics.IncFFmpegExit("start_error")
		return nil, fmt.Errorf("encode: start %s: %w", bin, err)
	}
	metrics.IncFFmpegStart()

	h := &Handle{
		cmd:         cmd,
		ring:        NewLineRing(stderrRingLines),
		started:     time.Now(),
		killTimeout: e.cfg.KillTimeout,
		logger:      e.logger.With().Int(log.FieldPID, cmd.Process.Pid).Logger(),
		done:        make(chan struct{}),
	}

	h.ioWg.Add(1)
	go func() {
		defer h.ioWg.Done()
		drainStderr(stderr, h.ring)
	}()
	go h.wait()
	return h, nil
}

// drainStderr feeds r into ring until EOF. Lines end at \r or \n. If the
// scanner fails the rest is discarded so the child never blocks on a full pipe.
func drainStderr(r io.Reader, ring *LineRing) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxStderrLine)
	scanner.Split(scanOutputLines)
	for scanner.Scan() {
		_, _ = ring.Write(scanner.Bytes())
	}
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// scanOutputLines is bufio.ScanLines that also splits on carriage returns.
func scanOutputLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (h *Handle) wait() {
	// Stderr must be drained before Wait closes the pipe.
	h.ioWg.Wait()
	err := h.cmd.Wait()

	code := 0
	reason := "success"
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			err = nil
			reason = "error"
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				reason = "signal"
			}
		} else {
			code = -1
			reason = "wait_error"
		}
	}
	metrics.IncFFmpegExit(reason)

	h.mu.Lock()
	h.exitCode = code
	h.waitErr = err
	h.ended = time.Now()
	h.mu.Unlock()

	ev := h.logger.Info()
	if code != 0 {
		ev = h.logger.Warn().Strs("stderr", h.ring.LastN(10))
	}
	ev.Str(log.FieldEvent, "ffmpeg.exit").
		Int(log.FieldExitCode, code).
		Dur("uptime", time.Since(h.started)).
		Msg("encoder exited")

	close(h.done)
}

// PID returns the process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Exited is closed once the process has exited and its output is drained.
func (h *Handle) Exited() <-chan struct{} {
	return h.done
}

// WaitForExit blocks until the process exits or ctx ends. Signalled processes
// report exit code -1.
func (h *Handle) WaitForExit(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, h.waitErr
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// ExitCode returns the exit code and true once the process has exited.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Kill sends SIGKILL to the whole process group and waits for the exit.
func (h *Handle) Kill() {
	select {
	case <-h.done:
		return
	default:
	}
	if err := procgroup.Kill(h.cmd, syscall.SIGKILL); err != nil {
		h.logger.Warn().Err(err).Str(log.FieldEvent, "ffmpeg.kill_failed").Msg("cannot kill encoder process group")
		_ = h.cmd.Process.Kill()
	}
	<-h.done
}

// Terminate sends SIGTERM, then SIGKILL after the configured grace period.
func (h *Handle) Terminate() {
	select {
	case <-h.done:
		return
	default:
	}
	waitCh := make(chan error, 1)
	go func() {
		<-h.done
		h.mu.Lock()
		waitCh <- h.waitErr
		h.mu.Unlock()
	}()
	_ = procgroup.Terminate(h.cmd, waitCh, h.killTimeout)
	<-h.done
}

// Stderr returns the last n stderr lines.
func (h *Handle) Stderr(n int) []string {
	return h.ring.LastN(n)
}

// OutputExists reports whether path exists and is non-empty.
func OutputExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
