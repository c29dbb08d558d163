// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package monitor polls every camera on an interval, classifies it ONLINE,
// ERROR or OFFLINE with time-based hysteresis, and fans status changes out to
// the store, real-time subscribers, the event log and notifications.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/fanout"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/metrics"
	"github.com/ManuGH/camfleet/internal/sink"
	"github.com/ManuGH/camfleet/internal/stream"
	"github.com/ManuGH/camfleet/internal/telemetry"
)

// Defaults for Config.
const (
	DefaultInterval         = 5 * time.Minute
	DefaultOfflineThreshold = 10 * time.Minute
	DefaultErrorBackoff     = 60 * time.Second
	DefaultConcurrency      = 4
	DefaultProbeRate        = 10.0
)

// Config tunes the monitor. Zero values take the defaults.
type Config struct {
	Interval         time.Duration
	OfflineThreshold time.Duration
	// ErrorBackoff is the wait after a failed camera listing.
	ErrorBackoff time.Duration
	Concurrency  int
	// ProbeRate caps probe starts per second.
	ProbeRate float64
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.OfflineThreshold <= 0 {
		c.OfflineThreshold = DefaultOfflineThreshold
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ProbeRate <= 0 {
		c.ProbeRate = DefaultProbeRate
	}
	return c
}

// Deps are the monitor collaborators. Cameras and Prober are required.
type Deps struct {
	Cameras       camera.Store
	Prober        stream.Prober
	Broadcaster   fanout.Broadcaster
	Events        sink.EventSink
	Notifications sink.NotificationSink
	Clock         Clock
	Tracer        trace.Tracer
}

// Stats summarizes the fleet by status.
type Stats struct {
	Total   int  `json:"totalCameras"`
	Online  int  `json:"onlineCameras"`
	Offline int  `json:"offlineCameras"`
	Error   int  `json:"errorCameras"`
	Unknown int  `json:"unknownCameras"`
	Active  bool `json:"isMonitoringActive"`
}

// Monitor is the camera health state machine.
type Monitor struct {
	cameras camera.Store
	prober  stream.Prober
	bc      fanout.Broadcaster
	events  sink.EventSink
	notify  sink.NotificationSink
	clock   Clock
	tracer  trace.Tracer
	logger  zerolog.Logger
	states  states
	limiter *rate.Limiter

	mu      sync.Mutex
	cfg     Config
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a monitor. It does not start polling.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if deps.Cameras == nil || deps.Prober == nil {
		return nil, errors.New("monitor: camera store and prober are required")
	}
	cfg = cfg.withDefaults()
	m := &Monitor{
		cameras: deps.Cameras,
		prober:  deps.Prober,
		bc:      fanout.OrNop(deps.Broadcaster),
		events:  sink.EventsOrNop(deps.Events),
		notify:  sink.NotificationsOrNop(deps.Notifications),
		clock:   deps.Clock,
		tracer:  deps.Tracer,
		logger:  log.WithComponent("monitor"),
		limiter: rate.NewLimiter(rate.Limit(cfg.ProbeRate), cfg.Concurrency),
		cfg:     cfg,
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer("github.com/ManuGH/camfleet/internal/monitor")
	}
	return m, nil
}

func (m *Monitor) config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// ApplyConfig swaps the tunables. The loop picks up a new interval after the
// current wait.
func (m *Monitor) ApplyConfig(cfg Config) {
	cfg = cfg.withDefaults()
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.limiter.SetLimit(rate.Limit(cfg.ProbeRate))
	m.limiter.SetBurst(cfg.Concurrency)
	m.logger.Info().
		Str(log.FieldEvent, "monitor.config_applied").
		Dur("interval", cfg.Interval).
		Dur("offline_threshold", cfg.OfflineThreshold).
		Int("concurrency", cfg.Concurrency).
		Msg("monitor configuration applied")
}

// Start begins periodic polling. A second call while running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Warn().Str(log.FieldEvent, "monitor.already_started").Msg("camera monitoring already started")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx, m.done)
	m.logger.Info().Str(log.FieldEvent, "monitor.started").Dur("interval", m.cfg.Interval).Msg("camera monitoring started")
}

// Stop cancels polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.running = false
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info().Str(log.FieldEvent, "monitor.stopped").Msg("camera monitoring stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		cfg := m.config()
		wait := cfg.Interval
		if err := m.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.IncCycleError()
			m.logger.Error().Err(err).Str(log.FieldEvent, "monitor.cycle_failed").Dur("backoff", cfg.ErrorBackoff).Msg("monitor cycle failed")
			wait = cfg.ErrorBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(wait):
		}
	}
}

// Cycle probes every camera once. It returns an error only when the camera
// list cannot be read; per-camera failures are logged and absorbed.
func (m *Monitor) Cycle(ctx context.Context) error {
	started := time.Now()
	cams, err := m.cameras.List(ctx)
	if err != nil {
		return fmt.Errorf("list cameras: %w", err)
	}
	m.logger.Debug().Str(log.FieldEvent, "monitor.cycle").Int("cameras", len(cams)).Msg("checking camera status")

	cfg := m.config()
	results := make([]camera.Status, len(cams))
	// In-flight probes finish even when ctx is cancelled.
	probeCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for i, cam := range cams {
		results[i] = cam.Status
		if ctx.Err() != nil {
			break
		}
		if err := m.limiter.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			results[i] = m.check(probeCtx, cam, cfg.OfflineThreshold)
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[string]int, 4)
	for _, st := range results {
		counts[string(st)]++
	}
	metrics.SetCamerasByStatus(counts)
	metrics.ObserveCycle(time.Since(started))
	return nil
}

// CheckNow probes one camera synchronously. It returns nil, nil when the
// camera does not exist.
func (m *Monitor) CheckNow(ctx context.Context, cameraID string) (*camera.Camera, error) {
	cam, err := m.cameras.GetByID(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("get camera %s: %w", cameraID, err)
	}
	if cam == nil {
		m.logger.Warn().Str(log.FieldEvent, "monitor.camera_not_found").Str(log.FieldCameraID, cameraID).Msg("camera not found")
		return nil, nil
	}
	m.check(ctx, *cam, m.config().OfflineThreshold)
	return m.cameras.GetByID(ctx, cameraID)
}

// check probes cam and applies the transition policy. A panicking probe is
// treated as a probe error.
func (m *Monitor) check(ctx context.Context, cam camera.Camera, threshold time.Duration) (status camera.Status) {
	ctx, span := m.tracer.Start(ctx, "monitor.check", trace.WithAttributes(telemetry.CameraAttributes(cam.ID, cam.Name)...))
	defer func() {
		span.SetAttributes(attribute.String(telemetry.CameraStatusKey, string(status)))
		span.End()
	}()

	logger := m.logger.With().Str(log.FieldCameraID, cam.ID).Str(log.FieldCameraName, cam.Name).Logger()
	st := m.states.get(cam.ID)

	defer func() {
		if r := recover(); r != nil {
			metrics.IncProbe("panic")
			logger.Error().Str(log.FieldEvent, "monitor.probe_panic").Interface("panic", r).Msg("error checking camera status")
			status = cam.Status
			if cam.Status != camera.StatusError {
				m.transition(ctx, logger, cam, camera.StatusError, m.clock.Now())
				status = camera.StatusError
			}
		}
	}()

	res := m.prober.TestConnection(ctx, cam.URL, cam.Credentials)
	now := m.clock.Now()
	st.checked(now, res.OK)

	next := camera.StatusOnline
	if res.OK {
		metrics.IncProbe("ok")
	} else {
		metrics.IncProbe("failed")
		next = classifyFailure(now, st.online(), cam.LastSeen, threshold)
		logger.Debug().Str(log.FieldEvent, "monitor.probe_failed").Str("reason", res.Reason).Str(log.FieldNewState, string(next)).Msg("camera probe failed")
	}

	if next == cam.Status {
		if next == camera.StatusOnline {
			refreshed := cam
			refreshed.LastSeen = &now
			refreshed.UpdatedAt = now
			if _, err := m.cameras.Update(ctx, refreshed); err != nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "monitor.persist_failed").Msg("cannot refresh last seen")
			}
		}
		return next
	}
	m.transition(ctx, logger, cam, next, now)
	return next
}

// classifyFailure picks OFFLINE once the camera has been unreachable for
// longer than threshold, ERROR before that. A camera never seen online is
// OFFLINE right away.
func classifyFailure(now, lastOnline time.Time, lastSeen *time.Time, threshold time.Duration) camera.Status {
	ref := lastOnline
	if lastSeen != nil && lastSeen.After(ref) {
		ref = *lastSeen
	}
	if now.Sub(ref) > threshold {
		return camera.StatusOffline
	}
	return camera.StatusError
}

// transition runs the side effects of a status change in order: persist,
// broadcast, event, notification. Each failure is logged and skipped.
func (m *Monitor) transition(ctx context.Context, logger zerolog.Logger, cam camera.Camera, next camera.Status, now time.Time) {
	prev := cam.Status
	updated := cam
	updated.Status = next
	updated.UpdatedAt = now
	if next == camera.StatusOnline {
		updated.LastSeen = &now
	}

	if _, err := m.cameras.Update(ctx, updated); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "monitor.persist_failed").Msg("failed to update camera status")
	}
	metrics.IncTransition(string(prev), string(next))
	trace.SpanFromContext(ctx).AddEvent("status_changed", trace.WithAttributes(telemetry.TransitionAttributes(string(prev), string(next))...))
	logger.Info().
		Str(log.FieldEvent, "monitor.transition").
		Str(log.FieldOldState, string(prev)).
		Str(log.FieldNewState, string(next)).
		Msg("camera status updated")

	if err := m.bc.Broadcast(ctx, fanout.ChannelCameras, "camera_status_changed", map[string]any{
		"cameraId":   cam.ID,
		"cameraName": cam.Name,
		"oldStatus":  prev,
		"newStatus":  next,
		"timestamp":  now.UnixMilli(),
	}); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "monitor.broadcast_failed").Msg("failed to broadcast camera status change")
	}

	recovered := next == camera.StatusOnline && (prev == camera.StatusOffline || prev == camera.StatusError)

	var err error
	switch {
	case next == camera.StatusOffline:
		err = m.events.CameraOffline(ctx, cam.ID, cam.Name, fmt.Sprintf("camera unavailable (was %s)", prev))
	case next == camera.StatusError:
		err = m.events.SystemError(ctx, cam.ID, cam.Name, fmt.Sprintf("connection error to camera '%s'", cam.Name))
	case recovered:
		err = m.events.CameraOnline(ctx, cam.ID, cam.Name, fmt.Sprintf("camera recovered (was %s)", prev))
	}
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "monitor.event_failed").Msg("error creating camera status event")
	}

	err = nil
	switch {
	case next == camera.StatusOffline:
		err = m.notify.Warning(ctx, "Camera unavailable", fmt.Sprintf("camera '%s' is unavailable (OFFLINE)", cam.Name), cam.ID)
	case next == camera.StatusError:
		err = m.notify.Error(ctx, "Camera error", fmt.Sprintf("connection error detected for camera '%s'", cam.Name), cam.ID)
	case recovered:
		err = m.notify.Notify(ctx, sink.Notification{
			Title:    "Camera recovered",
			Message:  fmt.Sprintf("camera '%s' is available again", cam.Name),
			Type:     sink.NotificationInfo,
			Priority: sink.PriorityNormal,
			CameraID: cam.ID,
		})
	}
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "monitor.notify_failed").Msg("error sending camera status notification")
	}
}

// Stats counts cameras by status.
func (m *Monitor) Stats(ctx context.Context) (Stats, error) {
	cams, err := m.cameras.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list cameras: %w", err)
	}
	s := Stats{Total: len(cams), Active: m.Running()}
	for _, c := range cams {
		switch c.Status {
		case camera.StatusOnline:
			s.Online++
		case camera.StatusOffline:
			s.Offline++
		case camera.StatusError:
			s.Error++
		default:
			s.Unknown++
		}
	}
	return s, nil
}
