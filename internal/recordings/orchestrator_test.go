// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/media/ffmpeg"
	"github.com/ManuGH/camfleet/internal/persistence/memory"
	"github.com/ManuGH/camfleet/internal/sink"
	"github.com/ManuGH/camfleet/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource connects instantly unless hang is set.
type fakeSource struct {
	hang       bool
	gate       chan struct{}
	connectErr error

	state  atomic.Value
	frames chan stream.Frame
	once   sync.Once
	plays  atomic.Int32
	pauses atomic.Int32
}

func newFakeSource() *fakeSource {
	s := &fakeSource{frames: make(chan stream.Frame, 16)}
	s.state.Store(stream.StateDisconnected)
	return s
}

func (s *fakeSource) Connect(ctx context.Context) error {
	if s.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.connectErr != nil {
		s.state.Store(stream.StateError)
		return s.connectErr
	}
	s.state.Store(stream.StateConnected)
	return nil
}

func (s *fakeSource) State() stream.State { return s.state.Load().(stream.State) }

func (s *fakeSource) Play(context.Context) error {
	s.plays.Add(1)
	s.state.Store(stream.StatePlaying)
	return nil
}

func (s *fakeSource) Pause() error {
	s.pauses.Add(1)
	s.state.Store(stream.StateConnected)
	return nil
}

func (s *fakeSource) Frames() <-chan stream.Frame { return s.frames }
func (s *fakeSource) Err() error                  { return nil }

func (s *fakeSource) Disconnect() error {
	s.once.Do(func() {
		s.state.Store(stream.StateDisconnected)
		close(s.frames)
	})
	return nil
}

func (s *fakeSource) Close() error { return s.Disconnect() }

type fakeProcess struct {
	exit   chan struct{}
	once   sync.Once
	code   atomic.Int32
	killed atomic.Bool
	stderr []string
}

func newFakeProcess() *fakeProcess { return &fakeProcess{exit: make(chan struct{})} }

func (p *fakeProcess) WaitForExit(ctx context.Context) (int, error) {
	select {
	case <-p.exit:
		return int(p.code.Load()), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (p *fakeProcess) exitWith(code int) {
	p.once.Do(func() {
		p.code.Store(int32(code))
		close(p.exit)
	})
}

func (p *fakeProcess) Kill() {
	p.killed.Store(true)
	p.exitWith(-1)
}

func (p *fakeProcess) Stderr(int) []string { return p.stderr }

type fakeEncoder struct {
	mu    sync.Mutex
	procs []*fakeProcess
	reqs  []ffmpeg.EncodeRequest
}

func (e *fakeEncoder) Available(context.Context) bool { return true }

func (e *fakeEncoder) Start(_ context.Context, req ffmpeg.EncodeRequest) (Process, error) {
	if err := os.WriteFile(req.Output, []byte("encoded-media"), 0o600); err != nil {
		return nil, err
	}
	p := newFakeProcess()
	p.stderr = []string{"connection refused"}
	e.mu.Lock()
	e.procs = append(e.procs, p)
	e.reqs = append(e.reqs, req)
	e.mu.Unlock()
	return p, nil
}

func (e *fakeEncoder) GenerateThumbnail(_ context.Context, _, out string, _ time.Duration, _ int) bool {
	return os.WriteFile(out, []byte("jpg"), 0o600) == nil
}

func (e *fakeEncoder) MediaInfo(context.Context, string) map[string]string {
	return map[string]string{"codec": "h264"}
}

func (e *fakeEncoder) lastProc() *fakeProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs[len(e.procs)-1]
}

type fakeGuard struct {
	enough atomic.Bool
	used   func() int64
}

func (g *fakeGuard) HasEnoughSpace(int64) bool       { return g.enough.Load() }
func (g *fakeGuard) IsWarningThresholdExceeded() bool { return false }
func (g *fakeGuard) Used() int64 {
	if g.used == nil {
		return 0
	}
	return g.used()
}

type sentMessage struct {
	channel, event string
	payload        map[string]any
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, channel, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, _ := payload.(map[string]any)
	b.sent = append(b.sent, sentMessage{channel: channel, event: event, payload: m})
	return nil
}

func (b *recordingBroadcaster) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.sent))
	for _, m := range b.sent {
		out = append(out, m.event)
	}
	return out
}

type eventLog struct {
	sink.Nop
	mu    sync.Mutex
	types []sink.EventType
	notes []sink.Notification
}

func (l *eventLog) RecordingEvent(_ context.Context, t sink.EventType, _ recording.Recording) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, t)
	return nil
}

func (l *eventLog) Notify(_ context.Context, n sink.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append(l.notes, n)
	return nil
}

func (l *eventLog) snapshot() ([]sink.EventType, []sink.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sink.EventType(nil), l.types...), append([]sink.Notification(nil), l.notes...)
}

type harness struct {
	o       *Orchestrator
	store   recording.Store
	guard   *fakeGuard
	enc     *fakeEncoder
	bc      *recordingBroadcaster
	log     *eventLog
	cfg     Config
	mu      sync.Mutex
	sources map[string]*fakeSource
	hang    atomic.Bool
}

func newHarness(t *testing.T, withEncoder bool, mutate ...func(*Config, *Deps)) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		store:   memory.New().Recordings(),
		guard:   &fakeGuard{},
		bc:      &recordingBroadcaster{},
		log:     &eventLog{},
		sources: make(map[string]*fakeSource),
	}
	h.guard.enough.Store(true)
	h.cfg = Config{
		RecordingsDir:  filepath.Join(dir, "recordings"),
		ThumbnailsDir:  filepath.Join(dir, "thumbnails"),
		ConnectTimeout: time.Second,
		ConnectPoll:    5 * time.Millisecond,
	}
	deps := Deps{
		Store:         h.store,
		Guard:         h.guard,
		Broadcaster:   h.bc,
		Events:        h.log,
		Notifications: h.log,
		Sources: stream.SourceFactoryFunc(func(cam camera.Camera) (stream.Source, error) {
			src := newFakeSource()
			h.mu.Lock()
			src.hang = h.hang.Load()
			h.sources[cam.ID] = src
			h.mu.Unlock()
			return src, nil
		}),
	}
	if withEncoder {
		h.enc = &fakeEncoder{}
		deps.Encoder = h.enc
	}
	for _, m := range mutate {
		m(&h.cfg, &deps)
	}
	o, err := New(h.cfg, deps)
	require.NoError(t, err)
	h.o = o
	h.cfg = o.cfg
	t.Cleanup(func() {
		o.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Wait(ctx)
	})
	return h
}

func (h *harness) source(id string) *fakeSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sources[id]
}

func (h *harness) get(t *testing.T, id string) recording.Recording {
	t.Helper()
	rec, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return *rec
}

func cam(id string) camera.Camera {
	return camera.Camera{ID: id, Name: "Camera " + id, URL: "rtsp://" + id + ".local/stream"}
}

func TestStartStop_Encoder(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMKV, recording.QualityHigh, nil)
	require.NoError(t, err)
	assert.Equal(t, recording.StatusActive, rec.Status)
	assert.Equal(t, filepath.Join(h.cfg.RecordingsDir, recording.FileName(rec.ID, rec.StartTime, recording.FormatMKV)), rec.FilePath)

	active := h.o.ActiveRecordings()
	require.Contains(t, active, "c1")
	assert.Equal(t, rec.ID, active["c1"].ID)
	assert.Equal(t, recording.StatusActive, h.get(t, rec.ID).Status)

	stopped, err := h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, recording.StatusCompleted, stopped.Status)
	assert.Equal(t, int64(len("encoded-media")), stopped.FileSize)
	assert.Equal(t, "/thumbnails/"+rec.ID+".jpg", stopped.ThumbnailURL)
	require.NotNil(t, stopped.EndTime)
	assert.Equal(t, stopped.EndTime.Sub(stopped.StartTime), stopped.Duration)
	assert.True(t, h.enc.lastProc().killed.Load())

	persisted := h.get(t, rec.ID)
	assert.Equal(t, recording.StatusCompleted, persisted.Status)
	assert.Empty(t, h.o.ActiveRecordings())

	assert.FileExists(t, filepath.Join(h.cfg.ThumbnailsDir, rec.ID+".jpg"))
	raw, err := os.ReadFile(rec.FilePath + ".json")
	require.NoError(t, err)
	var sc Sidecar
	require.NoError(t, json.Unmarshal(raw, &sc))
	assert.Equal(t, rec.ID, sc.Recording.ID)
	assert.Equal(t, "h264", sc.MediaInfo["codec"])

	assert.Equal(t, []string{"recording_started", "recording_stopped"}, h.bc.events())
	types, notes := h.log.snapshot()
	assert.Equal(t, []sink.EventType{sink.EventRecordingStarted, sink.EventRecordingStopped}, types)
	assert.Empty(t, notes)

	h.bc.mu.Lock()
	started := h.bc.sent[0].payload
	h.bc.mu.Unlock()
	assert.Equal(t, rec.ID, started["recordingId"])
	assert.Equal(t, "Camera c1", started["cameraName"])
}

func TestStart_ConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	var wins, dupes atomic.Int32
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, recording.ErrAlreadyRecording):
				dupes.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), dupes.Load())
	assert.Len(t, h.o.ActiveRecordings(), 1)

	_, err := h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)
	page, err := h.store.List(ctx, recording.Filter{}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestStart_InsufficientStorage(t *testing.T) {
	h := newHarness(t, true)
	h.guard.enough.Store(false)
	ctx := context.Background()

	_, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityHigh, nil)
	require.ErrorIs(t, err, recording.ErrInsufficientStorage)

	page, err := h.store.List(ctx, recording.Filter{}, 1, 100)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	entries, err := os.ReadDir(h.cfg.RecordingsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, h.bc.events())

	h.guard.enough.Store(true)
	_, err = h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityHigh, nil)
	require.NoError(t, err, "slot must be released after rejection")
	_, err = h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)
}

func TestStart_ConnectTimeout(t *testing.T) {
	h := newHarness(t, true, func(c *Config, _ *Deps) {
		c.ConnectTimeout = 100 * time.Millisecond
	})
	h.hang.Store(true)
	ctx := context.Background()

	_, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.ErrorIs(t, err, recording.ErrConnectionTimeout)
	assert.Empty(t, h.o.ActiveRecordings())
	assert.Equal(t, stream.StateDisconnected, h.source("c1").State())

	page, err := h.store.List(ctx, recording.Filter{}, 1, 100)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, recording.StatusFailed, page.Items[0].Status)
	assert.NotEmpty(t, page.Items[0].FailureReason)

	h.hang.Store(false)
	_, err = h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)
	_, err = h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)
}

func TestStart_ConnectError(t *testing.T) {
	h := newHarness(t, false, func(_ *Config, d *Deps) {
		d.Sources = stream.SourceFactoryFunc(func(camera.Camera) (stream.Source, error) {
			src := newFakeSource()
			src.connectErr = errors.New("401 unauthorized")
			return src, nil
		})
	})
	_, err := h.o.StartRecording(context.Background(), cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.ErrorIs(t, err, recording.ErrConnectionTimeout)
	assert.Contains(t, err.Error(), "401 unauthorized")
}

func TestEncoderExitNonZero_FinalizesFailed(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityMedium, nil)
	require.NoError(t, err)
	h.enc.lastProc().exitWith(1)

	require.Eventually(t, func() bool {
		r, err := h.store.GetByID(ctx, rec.ID)
		return err == nil && r != nil && r.Status == recording.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	persisted := h.get(t, rec.ID)
	assert.Contains(t, persisted.FailureReason, "exit code 1")
	assert.Contains(t, persisted.FailureReason, "connection refused")
	assert.Empty(t, h.o.ActiveRecordings())

	_, err = h.o.StopRecording(ctx, "c1")
	assert.ErrorIs(t, err, recording.ErrNoActiveRecording)

	require.Eventually(t, func() bool {
		_, notes := h.log.snapshot()
		return len(notes) == 1
	}, 2*time.Second, 10*time.Millisecond)
	types, notes := h.log.snapshot()
	assert.Equal(t, sink.EventRecordingFailed, types[len(types)-1])
	assert.Equal(t, sink.NotificationError, notes[0].Type)
	assert.Equal(t, rec.ID, notes[0].RecordingID)
}

func TestEncoderExitZero_FinalizesCompleted(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	d := 50 * time.Millisecond

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityMedium, &d)
	require.NoError(t, err)
	h.enc.mu.Lock()
	require.NotNil(t, h.enc.reqs[0].Duration)
	assert.Equal(t, d, *h.enc.reqs[0].Duration)
	h.enc.mu.Unlock()

	h.enc.lastProc().exitWith(0)
	require.Eventually(t, func() bool {
		return h.get(t, rec.ID).Status == recording.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPause_EncoderUnsupported(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)

	_, err = h.o.PauseRecording(ctx, "c1")
	assert.ErrorIs(t, err, recording.ErrUnsupported)
	_, err = h.o.ResumeRecording(ctx, "c1")
	assert.ErrorIs(t, err, recording.ErrUnsupported)

	_, err = h.o.PauseRecording(ctx, "nope")
	assert.ErrorIs(t, err, recording.ErrNoActiveRecording)
}

func TestFallbackCapture_PauseResumeStop(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)
	src := h.source("c1")
	assert.Equal(t, int32(1), src.plays.Load())

	src.frames <- stream.Frame{Data: []byte("abc")}
	src.frames <- stream.Frame{Data: []byte("defg")}
	require.Eventually(t, func() bool {
		info, err := os.Stat(rec.FilePath)
		return err == nil && info.Size() == 7
	}, 2*time.Second, 5*time.Millisecond)

	paused, err := h.o.PauseRecording(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, recording.StatusPaused, paused.Status)
	assert.Equal(t, recording.StatusPaused, h.get(t, rec.ID).Status)

	again, err := h.o.PauseRecording(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, recording.StatusPaused, again.Status)
	assert.Equal(t, int32(1), src.pauses.Load(), "pausing a paused session is a no-op")

	resumed, err := h.o.ResumeRecording(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, recording.StatusActive, resumed.Status)
	assert.Equal(t, int32(2), src.plays.Load())

	stopped, err := h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, recording.StatusCompleted, stopped.Status)
	assert.Equal(t, int64(7), stopped.FileSize)
	assert.Empty(t, stopped.ThumbnailURL)

	data, err := os.ReadFile(rec.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "abcdefg", string(data))
	assert.Equal(t, []string{"recording_started", "recording_paused", "recording_resumed", "recording_stopped"}, h.bc.events())
}

func TestFallbackCapture_DurationReached(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	d := 30 * time.Millisecond

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, &d)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.get(t, rec.ID).Status == recording.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.o.ActiveRecordings())
	assert.Equal(t, stream.StateDisconnected, h.source("c1").State())
}

func TestStop_NoActive(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.o.StopRecording(context.Background(), "missing")
	assert.ErrorIs(t, err, recording.ErrNoActiveRecording)
}

func TestStop_Twice(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)

	_, err = h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)
	_, err = h.o.StopRecording(ctx, "c1")
	assert.ErrorIs(t, err, recording.ErrNoActiveRecording)

	assert.Equal(t, recording.StatusCompleted, h.get(t, rec.ID).Status)
	assert.Equal(t, []string{"recording_started", "recording_stopped"}, h.bc.events())
}

func TestStop_AfterNaturalExit(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)

	h.enc.lastProc().exitWith(0)
	stopped, err := h.o.StopRecording(ctx, "c1")
	if err != nil {
		// The natural end won the race and finalizes on its own.
		require.ErrorIs(t, err, recording.ErrNoActiveRecording)
	} else {
		assert.Equal(t, recording.StatusCompleted, stopped.Status)
	}

	require.Eventually(t, func() bool {
		return h.get(t, rec.ID).Status == recording.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(h.bc.events()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"recording_started", "recording_stopped"}, h.bc.events())
}

func TestStop_ConcurrentSingleFinalize(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)

	const callers = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.o.StopRecording(ctx, "c1"); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, recording.ErrNoActiveRecording)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, recording.StatusCompleted, h.get(t, rec.ID).Status)
	types, _ := h.log.snapshot()
	assert.Equal(t, []sink.EventType{sink.EventRecordingStarted, sink.EventRecordingStopped}, types)
}

func TestFallbackCapture_StopRacesSourceEnd(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	for i := range 20 {
		id := fmt.Sprintf("c%d", i)
		rec, err := h.o.StartRecording(ctx, cam(id), recording.FormatMP4, recording.QualityLow, nil)
		require.NoError(t, err)
		s, ok := h.o.reg.get(id)
		require.True(t, ok)
		file := s.file
		require.NotNil(t, file)
		src := h.source(id)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = src.Disconnect()
		}()
		go func() {
			defer wg.Done()
			if _, err := h.o.StopRecording(ctx, id); err != nil {
				assert.ErrorIs(t, err, recording.ErrNoActiveRecording)
			}
		}()
		wg.Wait()

		require.Eventually(t, func() bool {
			return h.get(t, rec.ID).Status == recording.StatusCompleted
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, stream.StateDisconnected, src.State())
		_, err = file.Write([]byte("late"))
		assert.ErrorIs(t, err, os.ErrClosed, "output file must be closed")
	}

	require.Eventually(t, func() bool {
		return len(h.bc.events()) == 40
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stops := 0
	for _, ev := range h.bc.events() {
		if ev == "recording_stopped" {
			stops++
		}
	}
	assert.Equal(t, 20, stops, "each session finalizes exactly once")
	assert.Empty(t, h.o.ActiveRecordings())
}

func TestStart_AfterCloseRejected(t *testing.T) {
	h := newHarness(t, true)
	h.o.Close()

	_, err := h.o.StartRecording(context.Background(), cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.ErrorIs(t, err, recording.ErrClosed)
	assert.Nil(t, h.source("c1"), "no source is opened after close")

	page, err := h.store.List(context.Background(), recording.Filter{}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestClose_StopsSessionStartingConcurrently(t *testing.T) {
	gate := make(chan struct{})
	var created atomic.Pointer[fakeSource]
	h := newHarness(t, true, func(_ *Config, d *Deps) {
		d.Sources = stream.SourceFactoryFunc(func(camera.Camera) (stream.Source, error) {
			src := newFakeSource()
			src.gate = gate
			created.Store(src)
			return src, nil
		})
	})
	ctx := context.Background()

	type result struct {
		rec *recording.Recording
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
		done <- result{rec, err}
	}()
	require.Eventually(t, func() bool { return created.Load() != nil }, 2*time.Second, 5*time.Millisecond)

	h.o.Close()
	close(gate)
	res := <-done
	require.NoError(t, res.err)

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.o.Wait(wctx))
	assert.Empty(t, h.o.ActiveRecordings())
	assert.Equal(t, recording.StatusCompleted, h.get(t, res.rec.ID).Status)
}

func TestStart_AfterStopAllowsNewSession(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	first, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)
	_, err = h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)

	second, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

var errDiskFull = errors.New("disk full")

type failingUpdates struct {
	recording.Store
	fail atomic.Bool
}

func (f *failingUpdates) Update(ctx context.Context, rec recording.Recording) error {
	if f.fail.Load() {
		return errDiskFull
	}
	return f.Store.Update(ctx, rec)
}

func TestStop_PersistenceFailureReturnsRecording(t *testing.T) {
	store := &failingUpdates{Store: memory.New().Recordings()}
	h := newHarness(t, true, func(_ *Config, d *Deps) { d.Store = store })
	ctx := context.Background()

	_, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)

	store.fail.Store(true)
	rec, err := h.o.StopRecording(ctx, "c1")
	require.ErrorIs(t, err, recording.ErrPersistence)
	require.ErrorIs(t, err, errDiskFull, "store error stays matchable")
	require.NotNil(t, rec)
	assert.Equal(t, recording.StatusCompleted, rec.Status)
	assert.Empty(t, h.o.ActiveRecordings())
}

func TestCloseStopsEverySession(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	var ids []string
	for _, id := range []string{"c1", "c2", "c3"} {
		rec, err := h.o.StartRecording(ctx, cam(id), recording.FormatMP4, recording.QualityLow, nil)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	h.o.Close()
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.o.Wait(wctx))

	assert.Empty(t, h.o.ActiveRecordings())
	for _, id := range ids {
		assert.Equal(t, recording.StatusCompleted, h.get(t, id).Status)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{RecordingsDir: t.TempDir(), ThumbnailsDir: t.TempDir()}, Deps{})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Store: memory.New().Recordings(), Guard: &fakeGuard{}, Sources: stream.DefaultFactory{}})
	assert.Error(t, err)
}

func TestFFmpegEncoderIntegration(t *testing.T) {
	bin := fakeFFmpeg(t)
	enc := FFmpeg(ffmpeg.New(ffmpeg.Config{FFmpegPath: bin, FFprobePath: filepath.Join(t.TempDir(), "missing-ffprobe")}))
	prober := stream.ProbeFunc(func(context.Context, string, camera.Credentials) stream.Result {
		return stream.Success(nil)
	})
	h := newHarness(t, false, func(_ *Config, d *Deps) {
		d.Encoder = enc
		d.Sources = stream.DefaultFactory{Prober: prober}
	})
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := os.Stat(rec.FilePath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	stopped, err := h.o.StopRecording(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, recording.StatusCompleted, stopped.Status)
	assert.Positive(t, stopped.FileSize)
	assert.Equal(t, recording.ThumbnailURL(rec.ID), stopped.ThumbnailURL)
}

func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := `#!/bin/sh
for a; do last=$a; done
case " $* " in
*" -version "*) exit 0 ;;
*" -encoders "*) echo " V....D libx264  H.264"; exit 0 ;;
*" -vframes "*) printf jpg > "$last"; exit 0 ;;
esac
printf media > "$last"
exec sleep 30
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) // #nosec G306 -- test executable
	return path
}

func TestSweepOnce_AgeRetention(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, true, func(_ *Config, d *Deps) {
		d.Now = func() time.Time { return now }
	})
	ctx := context.Background()
	old := now.Add(-31 * 24 * time.Hour)

	for i := range 150 {
		require.NoError(t, h.store.Add(ctx, recording.Recording{
			ID:        fmt.Sprintf("old-%03d", i),
			CameraID:  "c9",
			Status:    recording.StatusCompleted,
			StartTime: old.Add(time.Duration(i) * time.Second),
			CreatedAt: old.Add(time.Duration(i) * time.Second),
		}))
	}

	media := filepath.Join(h.cfg.RecordingsDir, "old-file.mp4")
	require.NoError(t, os.WriteFile(media, make([]byte, 1024), 0o600))
	require.NoError(t, os.WriteFile(media+".json", []byte("{}"), 0o600))
	thumb := filepath.Join(h.cfg.ThumbnailsDir, "old-file.jpg")
	require.NoError(t, os.WriteFile(thumb, []byte("jpg"), 0o600))
	require.NoError(t, h.store.Add(ctx, recording.Recording{
		ID: "old-file", CameraID: "c9", Status: recording.StatusCompleted,
		StartTime: old, CreatedAt: old, FilePath: media,
	}))

	recent := now.Add(-time.Hour)
	require.NoError(t, h.store.Add(ctx, recording.Recording{
		ID: "recent", CameraID: "c9", Status: recording.StatusCompleted, StartTime: recent, CreatedAt: recent,
	}))

	res := h.o.SweepOnce(ctx)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 151, res.Deleted)
	assert.Equal(t, int64(1024+2+3), res.FreedBytes)
	assert.NoFileExists(t, media)
	assert.NoFileExists(t, media+".json")
	assert.NoFileExists(t, thumb)

	page, err := h.store.List(ctx, recording.Filter{}, 1, 100)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "recent", page.Items[0].ID)
}

func TestSweepOnce_SkipsLiveSession(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var clock atomic.Value
	clock.Store(start)
	h := newHarness(t, true, func(_ *Config, d *Deps) {
		d.Now = func() time.Time { return clock.Load().(time.Time) }
	})
	ctx := context.Background()

	rec, err := h.o.StartRecording(ctx, cam("c1"), recording.FormatMP4, recording.QualityLow, nil)
	require.NoError(t, err)

	clock.Store(start.Add(60 * 24 * time.Hour))
	res := h.o.SweepOnce(ctx)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, recording.StatusActive, h.get(t, rec.ID).Status)
	assert.FileExists(t, rec.FilePath)
}

func TestSweepOnce_Quota(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var h *harness
	h = newHarness(t, true, func(c *Config, d *Deps) {
		c.MaxStorageBytes = 250
		d.Now = func() time.Time { return now }
	})
	h.guard.used = func() int64 { return dirSize(t, h.cfg.RecordingsDir) }
	ctx := context.Background()

	for i := range 4 {
		created := now.Add(-time.Duration(4-i) * time.Hour)
		path := filepath.Join(h.cfg.RecordingsDir, fmt.Sprintf("r%d.mp4", i))
		require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o600))
		require.NoError(t, h.store.Add(ctx, recording.Recording{
			ID: fmt.Sprintf("r%d", i), CameraID: "c1", Status: recording.StatusCompleted,
			StartTime: created, CreatedAt: created, FilePath: path,
		}))
	}

	res := h.o.SweepOnce(ctx)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Deleted)
	assert.LessOrEqual(t, dirSize(t, h.cfg.RecordingsDir), int64(250))

	for _, id := range []string{"r0", "r1"} {
		r, err := h.store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, r, "oldest recording %s should be deleted", id)
	}
	assert.Equal(t, "r2", h.get(t, "r2").ID)
}

type pagingStore struct {
	recording.Store
	mu  sync.Mutex
	ops []string
}

func (p *pagingStore) List(ctx context.Context, f recording.Filter, page, limit int) (recording.Page, error) {
	p.mu.Lock()
	p.ops = append(p.ops, fmt.Sprintf("list:%d:%d", page, limit))
	p.mu.Unlock()
	return p.Store.List(ctx, f, page, limit)
}

func (p *pagingStore) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	p.ops = append(p.ops, "delete")
	p.mu.Unlock()
	return p.Store.Delete(ctx, id)
}

func TestSweepOnce_PagesThroughStore(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &pagingStore{Store: memory.New().Recordings()}
	h := newHarness(t, true, func(_ *Config, d *Deps) {
		d.Store = store
		d.Now = func() time.Time { return now }
	})
	ctx := context.Background()
	old := now.Add(-40 * 24 * time.Hour)

	// Odd records started long ago but were created recently, so age retention keeps them.
	for i := range 250 {
		started := old.Add(time.Duration(i) * time.Second)
		created := started
		if i%2 == 1 {
			created = now
		}
		require.NoError(t, store.Add(ctx, recording.Recording{
			ID: fmt.Sprintf("r%03d", i), CameraID: "c1", Status: recording.StatusCompleted,
			StartTime: started, CreatedAt: created,
		}))
	}

	res := h.o.SweepOnce(ctx)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 125, res.Deleted)

	store.mu.Lock()
	ops := append([]string(nil), store.ops...)
	store.mu.Unlock()

	page, err := store.List(ctx, recording.Filter{}, 1, 500)
	require.NoError(t, err)
	require.Equal(t, 125, page.Total)
	for _, r := range page.Items {
		assert.True(t, r.CreatedAt.Equal(now), "kept %s", r.ID)
	}

	require.Greater(t, len(ops), 1)
	assert.Equal(t, fmt.Sprintf("list:1:%d", retentionPageSize), ops[0])
	assert.Equal(t, "delete", ops[1], "deletion starts before the next page is read")
	for _, op := range ops {
		if op != "delete" {
			assert.Contains(t, op, fmt.Sprintf(":%d", retentionPageSize))
		}
	}
}

func TestSweepOnce_QuotaPagesOldestFirst(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var h *harness
	h = newHarness(t, true, func(c *Config, d *Deps) {
		c.MaxStorageBytes = 10
		d.Now = func() time.Time { return now }
	})
	h.guard.used = func() int64 { return dirSize(t, h.cfg.RecordingsDir) }
	ctx := context.Background()

	// 130 active records that retention must skip, then finished ones on the second page.
	for i := range 130 {
		started := now.Add(-3*time.Hour + time.Duration(i)*time.Second)
		require.NoError(t, h.store.Add(ctx, recording.Recording{
			ID: fmt.Sprintf("a%03d", i), CameraID: "c1", Status: recording.StatusActive,
			StartTime: started, CreatedAt: started,
		}))
	}
	for i := range 3 {
		started := now.Add(-time.Duration(3-i) * time.Minute)
		path := filepath.Join(h.cfg.RecordingsDir, fmt.Sprintf("f%d.mp4", i))
		require.NoError(t, os.WriteFile(path, make([]byte, 8), 0o600))
		require.NoError(t, h.store.Add(ctx, recording.Recording{
			ID: fmt.Sprintf("f%d", i), CameraID: "c1", Status: recording.StatusCompleted,
			StartTime: started, CreatedAt: started, FilePath: path,
		}))
	}

	res := h.o.SweepOnce(ctx)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Deleted)
	for _, id := range []string{"f0", "f1"} {
		r, err := h.store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, r, "%s should be deleted", id)
	}
	assert.Equal(t, "f2", h.get(t, "f2").ID)
	assert.Equal(t, "a000", h.get(t, "a000").ID)
}

func TestRetentionScheduler(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, true, func(c *Config, d *Deps) {
		c.RetentionInterval = 10 * time.Millisecond
		d.Now = func() time.Time { return now }
	})
	ctx := context.Background()
	old := now.Add(-40 * 24 * time.Hour)
	require.NoError(t, h.store.Add(ctx, recording.Recording{ID: "old", CameraID: "c1", Status: recording.StatusCompleted, StartTime: old, CreatedAt: old}))

	h.o.StartRetention(ctx)
	h.o.StartRetention(ctx)
	require.Eventually(t, func() bool {
		r, err := h.store.GetByID(ctx, "old")
		return err == nil && r == nil
	}, 2*time.Second, 10*time.Millisecond)
	h.o.Close()
}

func dirSize(t *testing.T, dir string) int64 {
	t.Helper()
	var total int64
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		info, err := e.Info()
		if err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total
}
