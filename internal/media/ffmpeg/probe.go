// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/camfleet/internal/log"
)

type probeData struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

type probeStream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	RFrameRate string `json:"r_frame_rate,omitempty"`
}

// StreamInfo describes one elementary stream reported by ffprobe.
type StreamInfo struct {
	Index     int     `json:"index"`
	CodecType string  `json:"codecType"`
	CodecName string  `json:"codecName"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
}

// ProbeResult is the parsed ffprobe output for a file or live URL.
type ProbeResult struct {
	Container string
	Streams   []StreamInfo
}

// ErrNoStreams is returned when ffprobe answers but lists no decodable stream.
var ErrNoStreams = errors.New("ffprobe returned no playable streams")

// Probe runs ffprobe against target (file or URL) within timeout.
func (e *Encoder) Probe(ctx context.Context, target string, timeout time.Duration) (ProbeResult, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams"}
	if isRTSP(target) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, target)

	out, code, err := e.outputBounded(ctx, timeout, e.cfg.FFprobePath, args...)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe: %w", err)
	}
	if code != 0 {
		return ProbeResult{}, fmt.Errorf("ffprobe exited with code %d", code)
	}
	data, err := parseProbe(out)
	if err != nil {
		return ProbeResult{}, err
	}
	res := ProbeResult{Container: strings.Split(data.Format.FormatName, ",")[0]}
	for _, s := range data.Streams {
		if s.CodecName == "" {
			continue
		}
		res.Streams = append(res.Streams, StreamInfo{
			Index:     s.Index,
			CodecType: s.CodecType,
			CodecName: s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
			FPS:       frameRate(s.RFrameRate),
		})
	}
	if len(res.Streams) == 0 {
		return ProbeResult{}, ErrNoStreams
	}
	return res, nil
}

// MediaInfo returns duration, size, width, height, bitrate, codec and fps of
// a recorded file. It returns nil on any failure.
func (e *Encoder) MediaInfo(ctx context.Context, video string) map[string]string {
	if _, err := os.Stat(video); err != nil {
		return nil
	}
	out, code, err := e.outputBounded(ctx, mediaInfoTimeout, e.cfg.FFprobePath,
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", absPath(video))
	if err != nil || code != 0 {
		e.logger.Debug().Err(err).Int(log.FieldExitCode, code).Str(log.FieldEvent, "ffprobe.failed").Str(log.FieldPath, video).Msg("media info unavailable")
		return nil
	}
	data, err := parseProbe(out)
	if err != nil {
		return nil
	}
	return mediaInfoMap(data)
}

func parseProbe(out []byte) (probeData, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return probeData{}, fmt.Errorf("ffprobe json decode: %w", err)
	}
	return data, nil
}

func mediaInfoMap(data probeData) map[string]string {
	info := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			info[k] = v
		}
	}
	put("duration", data.Format.Duration)
	put("size", data.Format.Size)
	put("bitrate", data.Format.BitRate)

	for _, s := range data.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width > 0 {
			info["width"] = strconv.Itoa(s.Width)
		}
		if s.Height > 0 {
			info["height"] = strconv.Itoa(s.Height)
		}
		put("codec", s.CodecName)
		if fps := frameRate(s.RFrameRate); fps > 0 {
			info["fps"] = fmt.Sprintf("%.2f", fps)
		}
	}
	return info
}

func frameRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		return 0
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
