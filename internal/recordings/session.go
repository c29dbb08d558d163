// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recordings

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/stream"
)

const frameLogEvery = 100

// session is one live recording. Exactly one of proc and file is set:
// proc for encoder sessions, file for raw capture from source.
type session struct {
	id       string
	cameraID string
	ready    bool // guarded by registry.mu

	mu      sync.Mutex
	rec     recording.Recording
	failure string

	source   stream.Source
	proc     Process
	file     *os.File
	duration *time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger
}

func (s *session) snapshot() recording.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

func (s *session) setFailure(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == "" {
		s.failure = reason
	}
}

func (s *session) failureReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *session) encoderBacked() bool {
	return s.proc != nil
}

// run drives the session until it ends by itself or ctx is cancelled. It
// reports true for a natural end (process exit, duration reached, source EOF).
// Cleanup always runs before done closes.
func (s *session) run(ctx context.Context) (natural bool) {
	defer close(s.done)
	defer s.cleanup()

	if s.proc != nil {
		code, err := s.proc.WaitForExit(ctx)
		if err != nil || ctx.Err() != nil {
			return false
		}
		if code != 0 {
			reason := fmt.Sprintf("%v: exit code %d", recording.ErrProcessFailure, code)
			if tail := s.proc.Stderr(3); len(tail) > 0 {
				reason += " (" + strings.Join(tail, " | ") + ")"
			}
			s.setFailure(reason)
		}
		return true
	}
	return s.capture(ctx)
}

// capture appends raw frames to the output file. The result is not
// guaranteed to be a demuxable container.
func (s *session) capture(ctx context.Context) bool {
	var deadline <-chan time.Time
	if s.duration != nil && *s.duration > 0 {
		t := time.NewTimer(*s.duration)
		defer t.Stop()
		deadline = t.C
	}

	frames := s.source.Frames()
	var count, written int64
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			s.logger.Info().Str(log.FieldEvent, "recording.duration_reached").Int64("frames", count).Msg("requested duration reached")
			return true
		case f, ok := <-frames:
			if !ok {
				if err := s.source.Err(); err != nil {
					s.setFailure("stream source failed: " + err.Error())
				}
				return true
			}
			n, err := s.file.Write(f.Data)
			written += int64(n)
			if err != nil {
				s.setFailure("write output: " + err.Error())
				return true
			}
			count++
			if count%frameLogEvery == 0 {
				s.logger.Debug().Str(log.FieldEvent, "recording.frames").Int64("frames", count).Int64("bytes", written).Msg("capture progress")
			}
		}
	}
}

func (s *session) cleanup() {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEvent, "recording.file_close_failed").Msg("closing output file failed")
		}
	}
	if s.proc != nil {
		s.proc.Kill()
	}
	if s.source != nil {
		if err := s.source.Disconnect(); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEvent, "recording.disconnect_failed").Msg("disconnecting stream source failed")
		}
	}
}
