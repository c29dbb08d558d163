// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recordings supervises recording sessions: at most one per camera,
// admitted against storage, driven by the external encoder or by raw frame
// capture, finalized on stop or on natural end.
package recordings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/fanout"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/media/ffmpeg"
	"github.com/ManuGH/camfleet/internal/metrics"
	"github.com/ManuGH/camfleet/internal/sink"
	"github.com/ManuGH/camfleet/internal/stream"
	"github.com/ManuGH/camfleet/internal/telemetry"
)

// Defaults for Config.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultConnectPoll       = 100 * time.Millisecond
	DefaultRetentionInterval = time.Hour
	DefaultMaxAge            = 30 * 24 * time.Hour
	DefaultThumbnailOffset   = time.Second
	DefaultThumbnailWidth    = 320
)

// Admission answers storage admission questions.
type Admission interface {
	HasEnoughSpace(estimate int64) bool
	IsWarningThresholdExceeded() bool
	Used() int64
}

// Archiver receives finalized recordings for off-site upload.
type Archiver interface {
	Enqueue(rec recording.Recording) bool
}

// Config holds orchestrator tunables. Zero values take the defaults above.
type Config struct {
	RecordingsDir     string
	ThumbnailsDir     string
	ConnectTimeout    time.Duration
	ConnectPoll       time.Duration
	RetentionInterval time.Duration
	MaxAge            time.Duration
	// MaxStorageBytes enables the quota pass of the retention sweep.
	MaxStorageBytes int64
	ThumbnailOffset time.Duration
	ThumbnailWidth  int
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ConnectPoll <= 0 {
		c.ConnectPoll = DefaultConnectPoll
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = DefaultRetentionInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.ThumbnailOffset <= 0 {
		c.ThumbnailOffset = DefaultThumbnailOffset
	}
	if c.ThumbnailWidth <= 0 {
		c.ThumbnailWidth = DefaultThumbnailWidth
	}
}

// Deps are the collaborators. Store, Guard and Sources are required; the
// rest fall back to no-ops. A nil Encoder forces raw capture.
type Deps struct {
	Store         recording.Store
	Guard         Admission
	Sources       stream.SourceFactory
	Encoder       Encoder
	Broadcaster   fanout.Broadcaster
	Events        sink.EventSink
	Notifications sink.NotificationSink
	Archiver      Archiver
	Tracer        trace.Tracer
	Now           func() time.Time
}

// Orchestrator is the registry and lifecycle manager of recording sessions.
type Orchestrator struct {
	cfg    Config
	store  recording.Store
	guard  Admission
	src    stream.SourceFactory
	enc    Encoder
	bc     fanout.Broadcaster
	events sink.EventSink
	notify sink.NotificationSink
	arch   Archiver
	tracer trace.Tracer
	now    func() time.Time
	logger zerolog.Logger

	reg *registry
	wg  sync.WaitGroup

	retMu     sync.Mutex
	retCancel context.CancelFunc
	retDone   chan struct{}
	closeOnce sync.Once

	closeMu sync.RWMutex
	closed  bool
}

// New creates the orchestrator and the recordings and thumbnails directories.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Guard == nil || deps.Sources == nil {
		return nil, errors.New("recordings: store, guard and sources are required")
	}
	if cfg.RecordingsDir == "" || cfg.ThumbnailsDir == "" {
		return nil, errors.New("recordings: recordings and thumbnails dirs are required")
	}
	cfg.applyDefaults()
	for _, dir := range []*string{&cfg.RecordingsDir, &cfg.ThumbnailsDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("recordings: resolve %s: %w", *dir, err)
		}
		if err := os.MkdirAll(abs, 0o750); err != nil {
			return nil, fmt.Errorf("recordings: create %s: %w", abs, err)
		}
		*dir = abs
	}

	o := &Orchestrator{
		cfg:    cfg,
		store:  deps.Store,
		guard:  deps.Guard,
		src:    deps.Sources,
		enc:    deps.Encoder,
		bc:     fanout.OrNop(deps.Broadcaster),
		events: sink.EventsOrNop(deps.Events),
		notify: sink.NotificationsOrNop(deps.Notifications),
		arch:   deps.Archiver,
		tracer: deps.Tracer,
		now:    deps.Now,
		logger: log.WithComponent("recordings"),
		reg:    newRegistry(),
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/ManuGH/camfleet/internal/recordings")
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// StartRecording admits and starts a session for cam. duration bounds the
// recording; nil records until stopped.
func (o *Orchestrator) StartRecording(ctx context.Context, cam camera.Camera, format recording.Format, quality recording.Quality, duration *time.Duration) (_ *recording.Recording, err error) {
	ctx, span := o.tracer.Start(ctx, "recordings.start", trace.WithAttributes(
		telemetry.RecordingAttributes(cam.ID, string(format), string(quality))...,
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx = log.ContextWithCameraID(ctx, cam.ID)
	logger := log.WithContext(ctx, o.logger)

	s := &session{
		id:       uuid.NewString(),
		cameraID: cam.ID,
		duration: duration,
		done:     make(chan struct{}),
	}
	span.SetAttributes(attribute.String(telemetry.RecordingIDKey, s.id))

	if !o.beginStart() {
		return nil, recording.ErrClosed
	}
	defer o.wg.Done()

	if !o.reg.reserve(cam.ID, s) {
		metrics.IncAdmissionRejected("already_recording")
		return nil, fmt.Errorf("%w: %s", recording.ErrAlreadyRecording, cam.ID)
	}

	estimate := quality.EstimatedSize()
	if !o.guard.HasEnoughSpace(estimate) {
		o.reg.release(cam.ID, s)
		metrics.IncAdmissionRejected("storage")
		logger.Warn().Str(log.FieldEvent, "recording.admission_rejected").Int64("estimate_bytes", estimate).Msg("not enough storage for recording")
		return nil, fmt.Errorf("%w: need %d bytes", recording.ErrInsufficientStorage, estimate)
	}
	if o.guard.IsWarningThresholdExceeded() {
		logger.Warn().Str(log.FieldEvent, "recording.storage_warning").Msg("storage usage above warning threshold")
	}

	now := o.now().UTC()
	rec := recording.Recording{
		ID:         s.id,
		CameraID:   cam.ID,
		CameraName: cam.Name,
		Format:     format,
		Quality:    quality,
		Status:     recording.StatusActive,
		StartTime:  now,
		CreatedAt:  now,
	}
	if err := o.store.Add(ctx, rec); err != nil {
		o.reg.release(cam.ID, s)
		return nil, fmt.Errorf("%w: add recording: %w", recording.ErrPersistence, err)
	}

	ctx = log.ContextWithRecordingID(ctx, rec.ID)
	logger = log.WithContext(ctx, o.logger)
	s.logger = logger

	src, err := o.src.NewSource(cam)
	if err != nil {
		o.failStart(ctx, s, rec, nil, "open stream source: "+err.Error())
		return nil, fmt.Errorf("open stream source: %w", err)
	}
	if err := o.connect(ctx, src); err != nil {
		o.failStart(ctx, s, rec, src, err.Error())
		return nil, err
	}
	s.source = src

	if err := os.MkdirAll(o.cfg.RecordingsDir, 0o750); err != nil {
		o.failStart(ctx, s, rec, src, err.Error())
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	rec.FilePath = filepath.Join(o.cfg.RecordingsDir, recording.FileName(rec.ID, now, format))
	if err := o.store.Update(ctx, rec); err != nil {
		o.failStart(ctx, s, rec, src, "persist output path: "+err.Error())
		return nil, fmt.Errorf("%w: update recording: %w", recording.ErrPersistence, err)
	}

	path := "capture"
	if o.enc != nil && o.enc.Available(ctx) {
		// The encoder opens its own connection to the camera.
		_ = src.Disconnect()
		s.source = nil
		proc, err := o.enc.Start(ctx, ffmpeg.EncodeRequest{
			StreamURL:   cam.URL,
			Output:      rec.FilePath,
			Format:      format,
			Quality:     quality,
			Duration:    duration,
			Credentials: cam.Credentials,
		})
		if err != nil {
			o.failStart(ctx, s, rec, nil, err.Error())
			return nil, fmt.Errorf("%w: %v", recording.ErrProcessFailure, err)
		}
		s.proc = proc
		path = "encoder"
	} else {
		if err := src.Play(ctx); err != nil {
			o.failStart(ctx, s, rec, src, "play stream source: "+err.Error())
			return nil, fmt.Errorf("play stream source: %w", err)
		}
		f, err := os.OpenFile(rec.FilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) // #nosec G304 -- path is built from the recordings dir
		if err != nil {
			o.failStart(ctx, s, rec, src, "open output: "+err.Error())
			return nil, fmt.Errorf("open output file: %w", err)
		}
		s.file = f
	}

	s.rec = rec
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	o.reg.markReady(cam.ID, s)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if natural := s.run(sessCtx); natural {
			o.finishNatural(s)
		}
	}()
	if o.isClosed() {
		// Close ran while this session was starting and did not see it.
		o.stopInBackground(cam.ID)
	}

	metrics.IncRecordingStarted(path)
	metrics.SetRecordingsActive(o.reg.len())
	logger.Info().
		Str(log.FieldEvent, "recording.started").
		Str(log.FieldFormat, string(format)).
		Str(log.FieldQuality, string(quality)).
		Str(log.FieldPath, rec.FilePath).
		Str(log.FieldEncoder, path).
		Msg("recording started")

	if err := o.bc.Broadcast(ctx, fanout.ChannelRecordings, "recording_started", map[string]any{
		"recordingId": rec.ID,
		"cameraId":    rec.CameraID,
		"cameraName":  rec.CameraName,
		"format":      rec.Format,
		"quality":     rec.Quality,
		"startTime":   rec.StartTime,
		"timestamp":   o.now().UTC(),
	}); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "recording.broadcast_failed").Msg("broadcast recording_started failed")
	}
	if err := o.events.RecordingEvent(ctx, sink.EventRecordingStarted, rec); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "recording.event_failed").Msg("recording started event failed")
	}

	out := rec
	return &out, nil
}

// connect connects src and polls its state until it is ready or the connect
// timeout passes. The Connect call has always returned when connect returns.
func (o *Orchestrator) connect(ctx context.Context, src stream.Source) error {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	defer cancel()

	connErr := make(chan error, 1)
	go func() { connErr <- src.Connect(cctx) }()

	ticker := time.NewTicker(o.cfg.ConnectPoll)
	defer ticker.Stop()

	pending := connErr
	for {
		select {
		case err := <-pending:
			pending = nil
			if err != nil {
				return fmt.Errorf("%w: %v", recording.ErrConnectionTimeout, err)
			}
			if src.State().Ready() {
				return nil
			}
		case <-ticker.C:
			if pending == nil && src.State().Ready() {
				return nil
			}
		case <-cctx.Done():
			if pending != nil {
				_ = src.Disconnect()
				<-pending
			}
			return fmt.Errorf("%w after %s", recording.ErrConnectionTimeout, o.cfg.ConnectTimeout)
		}
	}
}

// failStart marks a started record FAILED and frees the camera slot.
func (o *Orchestrator) failStart(ctx context.Context, s *session, rec recording.Recording, src stream.Source, reason string) {
	if src != nil {
		_ = src.Disconnect()
	}
	end := o.now().UTC()
	rec.Status = recording.StatusFailed
	rec.EndTime = &end
	rec.FailureReason = reason
	if err := o.store.Update(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "recording.persist_failed").Msg("cannot mark recording failed")
	}
	o.reg.release(s.cameraID, s)
	metrics.IncRecordingFinished(string(recording.StatusFailed))
	s.logger.Warn().Str(log.FieldEvent, "recording.start_failed").Str("reason", reason).Msg("recording could not start")
	if err := o.events.RecordingEvent(ctx, sink.EventRecordingFailed, rec); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "recording.event_failed").Msg("recording failed event failed")
	}
}

// StopRecording stops and finalizes the session of cameraID.
func (o *Orchestrator) StopRecording(ctx context.Context, cameraID string) (_ *recording.Recording, err error) {
	ctx, span := o.tracer.Start(ctx, "recordings.stop", trace.WithAttributes(attribute.String(telemetry.CameraIDKey, cameraID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s, ok := o.reg.take(cameraID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recording.ErrNoActiveRecording, cameraID)
	}
	span.SetAttributes(attribute.String(telemetry.RecordingIDKey, s.id))

	s.cancel()
	if s.proc != nil {
		s.proc.Kill()
	} else if s.source != nil {
		_ = s.source.Disconnect()
	}
	<-s.done
	return o.finalize(ctx, s)
}

// finishNatural finalizes a session that ended without a stop request.
func (o *Orchestrator) finishNatural(s *session) {
	if !o.reg.takeIf(s.cameraID, s) {
		return
	}
	<-s.done
	if _, err := o.finalize(context.Background(), s); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "recording.finalize_failed").Msg("finalizing ended recording failed")
	}
}

func (o *Orchestrator) finalize(ctx context.Context, s *session) (*recording.Recording, error) {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()

	end := o.now().UTC()
	rec.EndTime = &end
	rec.Duration = end.Sub(rec.StartTime)
	if info, err := os.Stat(rec.FilePath); err == nil {
		rec.FileSize = info.Size()
	}

	if o.enc != nil && rec.FileSize > 0 {
		thumb := filepath.Join(o.cfg.ThumbnailsDir, rec.ID+".jpg")
		if o.enc.GenerateThumbnail(ctx, rec.FilePath, thumb, o.cfg.ThumbnailOffset, o.cfg.ThumbnailWidth) {
			rec.ThumbnailURL = recording.ThumbnailURL(rec.ID)
		}
	}

	if reason := s.failureReason(); reason != "" {
		rec.Status = recording.StatusFailed
		rec.FailureReason = reason
	} else {
		rec.Status = recording.StatusCompleted
	}

	metrics.IncRecordingFinished(string(rec.Status))
	metrics.SetRecordingsActive(o.reg.len())

	if err := o.store.Update(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str(log.FieldEvent, "recording.persist_failed").Msg("cannot persist finalized recording")
		out := rec
		return &out, fmt.Errorf("%w: update recording: %w", recording.ErrPersistence, err)
	}

	s.logger.Info().
		Str(log.FieldEvent, "recording.stopped").
		Str("status", string(rec.Status)).
		Dur("duration", rec.Duration).
		Int64("file_size", rec.FileSize).
		Msg("recording finalized")

	o.announceStopped(ctx, s.logger, rec)

	out := rec
	return &out, nil
}

func (o *Orchestrator) announceStopped(ctx context.Context, logger zerolog.Logger, rec recording.Recording) {
	if err := o.bc.Broadcast(ctx, fanout.ChannelRecordings, "recording_stopped", map[string]any{
		"recordingId": rec.ID,
		"cameraId":    rec.CameraID,
		"status":      rec.Status,
		"duration":    rec.Duration.Milliseconds(),
		"fileSize":    rec.FileSize,
		"endTime":     rec.EndTime,
		"timestamp":   o.now().UTC(),
	}); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "recording.broadcast_failed").Msg("broadcast recording_stopped failed")
	}

	evType := sink.EventRecordingStopped
	if rec.Status == recording.StatusFailed {
		evType = sink.EventRecordingFailed
	}
	if err := o.events.RecordingEvent(ctx, evType, rec); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "recording.event_failed").Msg("recording stopped event failed")
	}

	if rec.Status == recording.StatusFailed {
		name := rec.CameraName
		if name == "" {
			name = rec.CameraID
		}
		if err := o.notify.Notify(ctx, sink.Notification{
			Title:       "Recording failed",
			Message:     fmt.Sprintf("recording on camera '%s' failed: %s", name, rec.FailureReason),
			Type:        sink.NotificationError,
			Priority:    sink.PriorityHigh,
			CameraID:    rec.CameraID,
			RecordingID: rec.ID,
		}); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "recording.notify_failed").Msg("recording failure notification failed")
		}
	}

	var info map[string]string
	if o.enc != nil && rec.FileSize > 0 {
		info = o.enc.MediaInfo(ctx, rec.FilePath)
	}
	if err := writeSidecar(rec, info); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "recording.sidecar_failed").Msg("writing metadata sidecar failed")
	}

	if o.arch != nil && rec.Status == recording.StatusCompleted && rec.FileSize > 0 {
		if !o.arch.Enqueue(rec) {
			logger.Warn().Str(log.FieldEvent, "recording.archive_dropped").Msg("archive queue full")
		}
	}
}

// PauseRecording pauses a raw-capture session. Encoder sessions return ErrUnsupported.
func (o *Orchestrator) PauseRecording(ctx context.Context, cameraID string) (*recording.Recording, error) {
	return o.togglePause(ctx, cameraID, true)
}

// ResumeRecording resumes a paused raw-capture session.
func (o *Orchestrator) ResumeRecording(ctx context.Context, cameraID string) (*recording.Recording, error) {
	return o.togglePause(ctx, cameraID, false)
}

func (o *Orchestrator) togglePause(ctx context.Context, cameraID string, pause bool) (*recording.Recording, error) {
	s, ok := o.reg.get(cameraID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recording.ErrNoActiveRecording, cameraID)
	}
	if s.encoderBacked() {
		return nil, fmt.Errorf("%w: encoder sessions cannot pause", recording.ErrUnsupported)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want, event := recording.StatusActive, "recording_resumed"
	if pause {
		want, event = recording.StatusPaused, "recording_paused"
	}
	if s.rec.Status == want {
		out := s.rec
		return &out, nil
	}

	var err error
	if pause {
		err = s.source.Pause()
	} else {
		err = s.source.Play(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s stream source: %w", event, err)
	}

	rec := s.rec
	rec.Status = want
	if err := o.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: update recording: %w", recording.ErrPersistence, err)
	}
	s.rec = rec

	s.logger.Info().Str(log.FieldEvent, "recording."+event[len("recording_"):]).Msg("recording " + event[len("recording_"):])
	if err := o.bc.Broadcast(ctx, fanout.ChannelRecordings, event, map[string]any{
		"recordingId": rec.ID,
		"cameraId":    rec.CameraID,
		"timestamp":   o.now().UTC(),
	}); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "recording.broadcast_failed").Msg("broadcast " + event + " failed")
	}
	out := rec
	return &out, nil
}

// ActiveRecordings returns a snapshot keyed by camera id.
func (o *Orchestrator) ActiveRecordings() map[string]recording.Recording {
	return o.reg.snapshot()
}

// Close stops the retention scheduler and stops every active session in the
// background. Later starts fail with ErrClosed. Use Wait to block until those
// stops finish.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.closeMu.Lock()
		o.closed = true
		o.closeMu.Unlock()

		o.stopRetention()
		for _, id := range o.reg.cameras() {
			o.stopInBackground(id)
		}
	})
}

// beginStart counts a start in the wait group unless the orchestrator is closed.
func (o *Orchestrator) beginStart() bool {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	return true
}

func (o *Orchestrator) isClosed() bool {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()
	return o.closed
}

func (o *Orchestrator) stopInBackground(cameraID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.StopRecording(context.Background(), cameraID); err != nil && !errors.Is(err, recording.ErrNoActiveRecording) {
			o.logger.Warn().Err(err).Str(log.FieldEvent, "recording.shutdown_stop_failed").Str(log.FieldCameraID, cameraID).Msg("stop on shutdown failed")
		}
	}()
}

// Wait blocks until every session goroutine and background stop has returned.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
