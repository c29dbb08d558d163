// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/log"
)

// GenerateThumbnail grabs a single frame at offset, scaled to width.
// It returns true only if ffmpeg exits 0 and the output file exists.
func (e *Encoder) GenerateThumbnail(ctx context.Context, video, out string, offset time.Duration, width int) bool {
	if _, err := os.Stat(video); err != nil {
		e.logger.Warn().Err(err).Str(log.FieldEvent, "ffmpeg.thumbnail_skipped").Str(log.FieldPath, video).Msg("video file not found")
		return false
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		e.logger.Warn().Err(err).Str(log.FieldEvent, "ffmpeg.thumbnail_failed").Msg("cannot create thumbnail directory")
		return false
	}

	code, err := e.runBounded(ctx, thumbnailTimeout, e.cfg.FFmpegPath, BuildThumbnailArgs(video, out, offset, width)...)
	if err != nil || code != 0 {
		e.logger.Warn().Err(err).Int(log.FieldExitCode, code).Str(log.FieldEvent, "ffmpeg.thumbnail_failed").Str(log.FieldPath, video).Msg("thumbnail generation failed")
		return false
	}
	if _, err := os.Stat(out); err != nil {
		e.logger.Warn().Str(log.FieldEvent, "ffmpeg.thumbnail_missing").Str(log.FieldPath, out).Msg("ffmpeg exited 0 without writing thumbnail")
		return false
	}
	e.logger.Debug().Str(log.FieldEvent, "ffmpeg.thumbnail_ok").Str(log.FieldPath, out).Msg("thumbnail generated")
	return true
}

// Convert transcodes in to format f at out, bounded to five minutes.
func (e *Encoder) Convert(ctx context.Context, in, out string, f recording.Format) bool {
	if _, err := os.Stat(in); err != nil {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return false
	}
	hw := e.DetectHardware(ctx)
	code, err := e.runBounded(ctx, convertTimeout, e.cfg.FFmpegPath, BuildConvertArgs(in, out, f, hw, e.cfg.UseH265)...)
	if err != nil || code != 0 {
		e.logger.Warn().Err(err).Int(log.FieldExitCode, code).Str(log.FieldEvent, "ffmpeg.convert_failed").Str(log.FieldPath, in).Msg("conversion failed")
		return false
	}
	_, err = os.Stat(out)
	return err == nil
}
