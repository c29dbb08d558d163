// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
)

// EncodeRequest describes one live stream to file encoding.
type EncodeRequest struct {
	StreamURL   string
	Output      string
	Format      recording.Format
	Quality     recording.Quality
	Duration    *time.Duration
	Credentials camera.Credentials
}

type qualityArgs struct {
	crf     string
	bitrate string
}

var qualityTable = map[recording.Quality]qualityArgs{
	recording.QualityLow:    {crf: "28", bitrate: "500k"},
	recording.QualityMedium: {crf: "23", bitrate: "2000k"},
	recording.QualityHigh:   {crf: "20", bitrate: "4000k"},
	recording.QualityUltra:  {crf: "18", bitrate: "8000k"},
}

type formatArgs struct {
	audioCodec string
	faststart  bool
}

var formatTable = map[recording.Format]formatArgs{
	recording.FormatMP4: {audioCodec: "aac", faststart: true},
	recording.FormatMKV: {audioCodec: "aac"},
	recording.FormatAVI: {audioCodec: "libmp3lame"},
	recording.FormatMOV: {audioCodec: "aac", faststart: true},
	recording.FormatFLV: {audioCodec: "libmp3lame"},
}

// quietArgs keep stderr to real errors. Progress output is \r terminated and
// would otherwise flood the stderr pipe for the whole recording.
var quietArgs = []string{"-hide_banner", "-nostats", "-loglevel", "error"}

// BuildEncodeArgs returns the ffmpeg argument list for req. The result depends
// only on req and the hardware profile.
func BuildEncodeArgs(req EncodeRequest, hw HWAccel, useH265 bool) []string {
	input := camera.WithCredentials(req.StreamURL, req.Credentials)

	args := make([]string, 0, 36)
	args = append(args, quietArgs...)
	if isRTSP(input) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-i", input)

	if req.Duration != nil && *req.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(req.Duration.Seconds(), 'f', 3, 64))
	}

	args = append(args, "-c:v", hw.VideoCodec(useH265))
	args = append(args, videoTuning(req.Format, hw)...)

	fa, ok := formatTable[req.Format]
	if !ok {
		fa = formatTable[recording.FormatMP4]
	}
	args = append(args, "-c:a", fa.audioCodec)
	if fa.faststart {
		args = append(args, "-movflags", "+faststart")
	}

	qa, ok := qualityTable[req.Quality]
	if !ok {
		qa = qualityTable[recording.QualityMedium]
	}
	args = append(args, "-crf", qa.crf, "-b:v", qa.bitrate)

	args = append(args, "-ar", "44100", "-ac", "2", "-y", absPath(req.Output))
	return args
}

// videoTuning returns encoder preset flags. Only MP4 gets vendor specific
// tuning; other containers get a medium preset on software encoding.
func videoTuning(f recording.Format, hw HWAccel) []string {
	if f == recording.FormatMP4 || f == "" {
		switch hw {
		case HWNvidia:
			return []string{"-preset", "p4", "-rc", "vbr"}
		case HWIntel:
			return []string{"-preset", "medium"}
		case HWAMD:
			return []string{"-quality", "balanced"}
		default:
			return []string{"-preset", "medium", "-tune", "zerolatency"}
		}
	}
	if hw == HWNone {
		return []string{"-preset", "medium"}
	}
	return nil
}

// BuildConvertArgs returns the argument list for converting in to out.
func BuildConvertArgs(in, out string, f recording.Format, hw HWAccel, useH265 bool) []string {
	args := []string{"-i", absPath(in), "-c:v", hw.VideoCodec(useH265)}
	if hw == HWNone {
		args = append(args, "-preset", "medium")
	}
	fa, ok := formatTable[f]
	if !ok {
		fa = formatTable[recording.FormatMP4]
	}
	args = append(args, "-c:a", fa.audioCodec)
	if f == recording.FormatMP4 {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-y", absPath(out))
}

// BuildThumbnailArgs returns the argument list for grabbing one frame at offset.
func BuildThumbnailArgs(video, out string, offset time.Duration, width int) []string {
	return []string{
		"-i", absPath(video),
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 1, 64),
		"-vframes", "1",
		"-vf", "scale=" + strconv.Itoa(width) + ":-1",
		"-y", absPath(out),
	}
}

func isRTSP(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "rtsp://") || strings.HasPrefix(lower, "rtsps://")
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
