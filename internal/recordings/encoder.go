// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recordings

import (
	"context"
	"time"

	"github.com/ManuGH/camfleet/internal/media/ffmpeg"
)

// Encoder is the external encoder the orchestrator drives.
type Encoder interface {
	Available(ctx context.Context) bool
	Start(ctx context.Context, req ffmpeg.EncodeRequest) (Process, error)
	GenerateThumbnail(ctx context.Context, video, out string, offset time.Duration, width int) bool
	MediaInfo(ctx context.Context, video string) map[string]string
}

// Process is one running encoder invocation.
type Process interface {
	// WaitForExit returns the exit code, or ctx.Err() if ctx ends first.
	WaitForExit(ctx context.Context) (int, error)
	// Kill force-kills the process group and returns after the exit.
	Kill()
	Stderr(n int) []string
}

// FFmpeg adapts an ffmpeg.Encoder.
func FFmpeg(enc *ffmpeg.Encoder) Encoder {
	return ffmpegEncoder{enc}
}

type ffmpegEncoder struct {
	*ffmpeg.Encoder
}

func (e ffmpegEncoder) Start(ctx context.Context, req ffmpeg.EncodeRequest) (Process, error) {
	h, err := e.Encode(ctx, req)
	if err != nil {
		return nil, err
	}
	return h, nil
}
