// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/media/ffmpeg"
)

const defaultProbeTimeout = 10 * time.Second

// Failure codes reported by FFProbe.
const (
	CodeTimeout    = 408
	CodeUnplayable = 415
	CodeUnreach    = 503
)

// FFProbe tests reachability by asking ffprobe for the stream list.
type FFProbe struct {
	Encoder *ffmpeg.Encoder
	Timeout time.Duration
}

// NewFFProbe returns a Prober backed by enc.
func NewFFProbe(enc *ffmpeg.Encoder, timeout time.Duration) *FFProbe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &FFProbe{Encoder: enc, Timeout: timeout}
}

// TestConnection implements Prober.
func (p *FFProbe) TestConnection(ctx context.Context, url string, creds camera.Credentials) Result {
	res, err := p.Encoder.Probe(ctx, camera.WithCredentials(url, creds), p.Timeout)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return Failure("probe timed out", CodeTimeout)
		case errors.Is(err, ffmpeg.ErrNoStreams):
			return Failure(err.Error(), CodeUnplayable)
		default:
			return Failure(err.Error(), CodeUnreach)
		}
	}

	streams := make([]Info, 0, len(res.Streams))
	caps := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, s := range res.Streams {
		streams = append(streams, Info{
			Index: s.Index, Type: s.CodecType, Codec: s.CodecName,
			Width: s.Width, Height: s.Height, FPS: s.FPS,
		})
		if s.CodecType != "" && !seen[s.CodecType] {
			seen[s.CodecType] = true
			caps = append(caps, s.CodecType)
		}
	}
	return Success(streams, caps...)
}
