// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/media/ffmpeg"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Success(nil).Err())

	err := Failure("connection refused", CodeUnreach).Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbeFailure))
	var pe *ProbeError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeUnreach, pe.Code)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Equal(t, ErrProbeFailure, Result{}.Err())
}

func TestProbeFunc(t *testing.T) {
	var gotURL string
	var gotCreds camera.Credentials
	p := ProbeFunc(func(_ context.Context, url string, creds camera.Credentials) Result {
		gotURL, gotCreds = url, creds
		return Success([]Info{{Type: "video"}}, "video")
	})
	res := p.TestConnection(context.Background(), "rtsp://cam/1", camera.Credentials{Username: "u"})
	assert.True(t, res.OK)
	assert.Equal(t, "rtsp://cam/1", gotURL)
	assert.Equal(t, "u", gotCreds.Username)
}

func fakeProbe(t *testing.T, body string) *ffmpeg.Encoder {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script binaries are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)) // #nosec G306 -- test executable
	return ffmpeg.New(ffmpeg.Config{FFprobePath: path})
}

func TestFFProbe(t *testing.T) {
	const out = `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":640,"height":480,"r_frame_rate":"25/1"},` +
		`{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{"format_name":"rtsp"}}`

	t.Run("ok", func(t *testing.T) {
		p := NewFFProbe(fakeProbe(t, "cat <<'JSON'\n"+out+"\nJSON"), time.Second)
		res := p.TestConnection(context.Background(), "rtsp://cam/1", camera.Credentials{})
		require.True(t, res.OK, res.Reason)
		require.Len(t, res.Streams, 2)
		assert.Equal(t, Info{Index: 0, Type: "video", Codec: "h264", Width: 640, Height: 480, FPS: 25}, res.Streams[0])
		assert.Equal(t, []string{"video", "audio"}, res.Capabilities)
	})

	t.Run("unreachable", func(t *testing.T) {
		p := NewFFProbe(fakeProbe(t, "exit 1"), time.Second)
		res := p.TestConnection(context.Background(), "rtsp://cam/1", camera.Credentials{})
		assert.False(t, res.OK)
		assert.Equal(t, CodeUnreach, res.Code)
		assert.ErrorIs(t, res.Err(), ErrProbeFailure)
	})

	t.Run("no streams", func(t *testing.T) {
		p := NewFFProbe(fakeProbe(t, `echo '{"streams":[]}'`), time.Second)
		res := p.TestConnection(context.Background(), "rtsp://cam/1", camera.Credentials{})
		assert.False(t, res.OK)
		assert.Equal(t, CodeUnplayable, res.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		p := NewFFProbe(fakeProbe(t, "exec sleep 5"), 100*time.Millisecond)
		res := p.TestConnection(context.Background(), "rtsp://cam/1", camera.Credentials{})
		assert.False(t, res.OK)
		assert.Equal(t, CodeTimeout, res.Code)
	})
}

func TestHTTPSource_DeliversChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, camera.Credentials{Username: "admin", Password: "secret"}, srv.Client(), 4)
	require.NoError(t, src.Connect(context.Background()))
	assert.Equal(t, StateConnected, src.State())
	require.NoError(t, src.Play(context.Background()))

	var got []byte
	for f := range src.Frames() {
		assert.LessOrEqual(t, len(f.Data), 4)
		got = append(got, f.Data...)
	}
	assert.Equal(t, payload, got)
	assert.NoError(t, src.Err())
	assert.NoError(t, src.Close())
	assert.Equal(t, StateDisconnected, src.State())
}

func TestHTTPSource_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, camera.Credentials{}, srv.Client(), 0)
	err := src.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, src.State())
	assert.Error(t, src.Play(context.Background()))
	assert.NoError(t, src.Close())
}

func TestHTTPSource_PauseAndDisconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for {
			if _, err := w.Write([]byte("frame")); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, camera.Credentials{}, srv.Client(), 0)
	require.NoError(t, src.Connect(context.Background()))
	require.NoError(t, src.Play(context.Background()))

	select {
	case f := <-src.Frames():
		assert.NotEmpty(t, f.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	require.NoError(t, src.Pause())
	assert.Equal(t, StateConnected, src.State())
	assert.Error(t, src.Pause())
	require.NoError(t, src.Play(context.Background()))
	assert.Equal(t, StatePlaying, src.State())

	require.NoError(t, src.Disconnect())
	assert.Equal(t, StateDisconnected, src.State())
	_, open := <-src.Frames()
	assert.False(t, open)
}

func TestHTTPFactory(t *testing.T) {
	f := HTTPFactory{}
	src, err := f.NewSource(camera.Camera{URL: "http://cam/stream.mjpg"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)
	require.NoError(t, src.Close())

	_, err = f.NewSource(camera.Camera{URL: "rtsp://cam/1"})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestProbeSource(t *testing.T) {
	ok := ProbeFunc(func(context.Context, string, camera.Credentials) Result { return Success(nil) })
	src := NewProbeSource(ok, camera.Camera{URL: "rtsp://cam/1"})
	require.NoError(t, src.Connect(context.Background()))
	assert.Equal(t, StateConnected, src.State())
	assert.ErrorIs(t, src.Play(context.Background()), ErrNoFrames)
	require.NoError(t, src.Close())
	require.NoError(t, src.Disconnect())
	_, open := <-src.Frames()
	assert.False(t, open)

	down := ProbeFunc(func(context.Context, string, camera.Credentials) Result { return Failure("refused", CodeUnreach) })
	src = NewProbeSource(down, camera.Camera{URL: "rtsp://cam/1"})
	assert.ErrorIs(t, src.Connect(context.Background()), ErrProbeFailure)
	assert.Equal(t, StateError, src.State())
	assert.ErrorIs(t, src.Err(), ErrProbeFailure)
}

func TestDefaultFactory(t *testing.T) {
	f := DefaultFactory{Prober: ProbeFunc(func(context.Context, string, camera.Credentials) Result { return Success(nil) })}

	src, err := f.NewSource(camera.Camera{URL: "https://cam/mjpeg"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)
	require.NoError(t, src.Close())

	src, err = f.NewSource(camera.Camera{URL: "rtsp://cam/1"})
	require.NoError(t, err)
	assert.IsType(t, &ProbeSource{}, src)

	_, err = DefaultFactory{}.NewSource(camera.Camera{URL: "rtsp://cam/1"})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
