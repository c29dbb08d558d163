// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"strings"

	"github.com/ManuGH/camfleet/internal/log"
)

// HWAccel is the video encoder family in use.
type HWAccel string

const (
	HWNone   HWAccel = "none"
	HWNvidia HWAccel = "nvidia"
	HWIntel  HWAccel = "intel"
	HWAMD    HWAccel = "amd"
)

// VideoCodec returns the ffmpeg encoder name for the family.
func (h HWAccel) VideoCodec(h265 bool) string {
	if h265 {
		switch h {
		case HWNvidia:
			return "hevc_nvenc"
		case HWIntel:
			return "hevc_qsv"
		case HWAMD:
			return "hevc_amf"
		default:
			return "libx265"
		}
	}
	switch h {
	case HWNvidia:
		return "h264_nvenc"
	case HWIntel:
		return "h264_qsv"
	case HWAMD:
		return "h264_amf"
	default:
		return "libx264"
	}
}

// parseEncoders picks the first hardware family listed in `ffmpeg -encoders` output.
func parseEncoders(out string) HWAccel {
	switch {
	case strings.Contains(out, "h264_nvenc"):
		return HWNvidia
	case strings.Contains(out, "h264_qsv"):
		return HWIntel
	case strings.Contains(out, "h264_amf"):
		return HWAMD
	default:
		return HWNone
	}
}

// DetectHardware lists ffmpeg encoders once and caches the chosen family.
// A check cut short by ctx returns HWNone without caching it.
func (e *Encoder) DetectHardware(ctx context.Context) HWAccel {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hwDone {
		return e.hw
	}
	if !e.availableLocked(ctx) {
		if ctx.Err() == nil {
			e.hw, e.hwDone = HWNone, true
		}
		return HWNone
	}
	out, code, err := e.outputBounded(ctx, encodersTimeout, e.cfg.FFmpegPath, "-hide_banner", "-encoders")
	if ctx.Err() != nil {
		return HWNone
	}
	e.hw, e.hwDone = HWNone, true
	if err != nil || code != 0 {
		e.logger.Debug().Err(err).Int(log.FieldExitCode, code).Str(log.FieldEvent, "ffmpeg.encoders_failed").Msg("cannot list encoders")
		return e.hw
	}
	e.hw = parseEncoders(string(out))
	e.logger.Info().
		Str(log.FieldEvent, "ffmpeg.hwaccel").
		Str(log.FieldEncoder, e.hw.VideoCodec(e.cfg.UseH265)).
		Str("hwaccel", string(e.hw)).
		Msg("video encoder selected")
	return e.hw
}
