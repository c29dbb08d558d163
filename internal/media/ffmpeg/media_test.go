// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"duration": "12.500000", "size": "1048576", "bit_rate": "671088", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestGenerateThumbnail(t *testing.T) {
	// Writes the last argument, which is the output path.
	bin := fakeBinary(t, "ffmpeg", `for last; do :; done; echo jpg > "$last"`)
	enc := New(Config{FFmpegPath: bin})

	dir := t.TempDir()
	video := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(video, []byte("data"), 0o600))
	thumb := filepath.Join(dir, "thumbs", "a.jpg")

	assert.True(t, enc.GenerateThumbnail(context.Background(), video, thumb, time.Second, 320))
	_, err := os.Stat(thumb)
	assert.NoError(t, err)
}

func TestGenerateThumbnail_Failures(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(video, []byte("data"), 0o600))

	failing := New(Config{FFmpegPath: fakeBinary(t, "ffmpeg", "exit 1")})
	assert.False(t, failing.GenerateThumbnail(context.Background(), video, filepath.Join(dir, "x.jpg"), time.Second, 320))

	noOutput := New(Config{FFmpegPath: fakeBinary(t, "ffmpeg", "exit 0")})
	assert.False(t, noOutput.GenerateThumbnail(context.Background(), video, filepath.Join(dir, "y.jpg"), time.Second, 320))

	assert.False(t, noOutput.GenerateThumbnail(context.Background(), filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "z.jpg"), time.Second, 320))
}

func TestMediaInfo(t *testing.T) {
	probe := fakeBinary(t, "ffprobe", "cat <<'JSON'\n"+probeJSON+"\nJSON")
	enc := New(Config{FFprobePath: probe})

	video := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(video, []byte("data"), 0o600))

	info := enc.MediaInfo(context.Background(), video)
	require.NotNil(t, info)
	assert.Equal(t, map[string]string{
		"duration": "12.500000",
		"size":     "1048576",
		"bitrate":  "671088",
		"width":    "1920",
		"height":   "1080",
		"codec":    "h264",
		"fps":      "29.97",
	}, info)
}

func TestMediaInfo_Unavailable(t *testing.T) {
	enc := New(Config{FFprobePath: fakeBinary(t, "ffprobe", "echo 'not json'")})
	video := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(video, []byte("data"), 0o600))

	assert.Nil(t, enc.MediaInfo(context.Background(), video))
	assert.Nil(t, enc.MediaInfo(context.Background(), filepath.Join(t.TempDir(), "missing.mp4")))
}

func TestProbe(t *testing.T) {
	enc := New(Config{FFprobePath: fakeBinary(t, "ffprobe", "cat <<'JSON'\n"+probeJSON+"\nJSON")})
	res, err := enc.Probe(context.Background(), "rtsp://cam/live", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "mov", res.Container)
	require.Len(t, res.Streams, 2)
	assert.Equal(t, "h264", res.Streams[0].CodecName)
	assert.InDelta(t, 29.97, res.Streams[0].FPS, 0.01)

	empty := New(Config{FFprobePath: fakeBinary(t, "ffprobe", `echo '{"streams":[],"format":{}}'`)})
	_, err = empty.Probe(context.Background(), "rtsp://cam/live", time.Second)
	assert.ErrorIs(t, err, ErrNoStreams)

	failing := New(Config{FFprobePath: fakeBinary(t, "ffprobe", "exit 1")})
	_, err = failing.Probe(context.Background(), "rtsp://cam/live", time.Second)
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	bin := fakeBinary(t, "ffmpeg", `
case "$*" in
  -version|"-hide_banner -encoders") exit 0 ;;
esac
for last; do :; done; echo out > "$last"`)
	enc := New(Config{FFmpegPath: bin})

	dir := t.TempDir()
	in := filepath.Join(dir, "a.mkv")
	require.NoError(t, os.WriteFile(in, []byte("data"), 0o600))

	assert.True(t, enc.Convert(context.Background(), in, filepath.Join(dir, "out", "a.mp4"), "MP4"))
	assert.False(t, enc.Convert(context.Background(), filepath.Join(dir, "missing.mkv"), filepath.Join(dir, "b.mp4"), "MP4"))
}
