// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package app is the composition root of camfleetd.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/admission"
	"github.com/ManuGH/camfleet/internal/archive"
	"github.com/ManuGH/camfleet/internal/config"
	"github.com/ManuGH/camfleet/internal/fanout"
	"github.com/ManuGH/camfleet/internal/health"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/media/ffmpeg"
	"github.com/ManuGH/camfleet/internal/monitor"
	"github.com/ManuGH/camfleet/internal/opsapi"
	"github.com/ManuGH/camfleet/internal/persistence"
	"github.com/ManuGH/camfleet/internal/recordings"
	"github.com/ManuGH/camfleet/internal/sink"
	"github.com/ManuGH/camfleet/internal/stream"
	"github.com/ManuGH/camfleet/internal/telemetry"
)

// Core is the part of the graph every command needs: stores, storage
// guard, encoder and the recording orchestrator.
type Core struct {
	Config     config.AppConfig
	Stores     *persistence.Stores
	Guard      *admission.StorageGuard
	Encoder    *ffmpeg.Encoder
	Prober     *stream.FFProbe
	Recordings *recordings.Orchestrator
	Archive    *archive.Queue

	logger zerolog.Logger
}

// App is the full daemon: Core plus monitor, fan-out, ops server and
// telemetry.
type App struct {
	*Core
	Holder    *config.Holder
	Monitor   *monitor.Monitor
	Hub       *fanout.Hub
	Redis     *fanout.Redis
	Health    *health.Manager
	Server    *opsapi.Server
	Telemetry *telemetry.Provider

	redisClient *redis.Client
	bg          sync.WaitGroup
	stopOnce    sync.Once
}

// OpenCore opens the stores and builds the recording pipeline. bc may be nil.
func OpenCore(ctx context.Context, cfg config.AppConfig, bc fanout.Broadcaster) (*Core, error) {
	logger := log.WithComponent("app")

	stores, err := persistence.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	logger.Info().
		Str(log.FieldEvent, "app.stores_opened").
		Str("backend", stores.Backend).
		Str(log.FieldPath, cfg.Storage.Path).
		Msg("stores opened")

	if err := SeedCameras(ctx, stores.Cameras, cfg.Cameras); err != nil {
		_ = stores.Close()
		return nil, err
	}

	guard := admission.NewStorageGuard(cfg.Recordings.Dir,
		admission.WithWarningThreshold(cfg.Recordings.WarningThreshold),
		admission.WithQuota(cfg.Recordings.MaxStorageBytes),
	)

	enc := ffmpeg.New(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpeg.Bin,
		FFprobePath: cfg.FFmpeg.FFprobeBin,
		KillTimeout: cfg.FFmpeg.KillTimeout,
		UseH265:     cfg.FFmpeg.UseH265,
	})
	prober := stream.NewFFProbe(enc, cfg.Monitor.ProbeTimeout)

	var recEnc recordings.Encoder
	if enc.Available(ctx) {
		recEnc = recordings.FFmpeg(enc)
	}

	c := &Core{
		Config:  cfg,
		Stores:  stores,
		Guard:   guard,
		Encoder: enc,
		Prober:  prober,
		logger:  logger,
	}

	var arch recordings.Archiver
	if cfg.Archive.Enabled {
		up, err := archive.NewS3(ctx, archive.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			UsePathStyle:    cfg.Archive.UsePathStyle,
		})
		if err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("init archive: %w", err)
		}
		c.Archive = archive.NewQueue(up, archive.QueueConfig{
			Size:    cfg.Archive.QueueSize,
			Workers: cfg.Archive.Workers,
		})
		arch = c.Archive
	}

	orch, err := recordings.New(recordings.Config{
		RecordingsDir:     cfg.Recordings.Dir,
		ThumbnailsDir:     cfg.Recordings.ThumbnailsDir,
		ConnectTimeout:    cfg.Recordings.ConnectTimeout,
		RetentionInterval: cfg.Recordings.RetentionInterval,
		MaxAge:            cfg.Recordings.MaxAge,
		MaxStorageBytes:   cfg.Recordings.MaxStorageBytes,
	}, recordings.Deps{
		Store:         stores.Recordings,
		Guard:         guard,
		Sources:       stream.DefaultFactory{Prober: prober},
		Encoder:       recEnc,
		Broadcaster:   bc,
		Events:        sink.NewEvents(stores.Events),
		Notifications: sink.NewNotifications(stores.Notifications),
		Archiver:      arch,
	})
	if err != nil {
		c.closeArchive(ctx)
		_ = stores.Close()
		return nil, fmt.Errorf("init recordings: %w", err)
	}
	c.Recordings = orch
	return c, nil
}

func (c *Core) closeArchive(ctx context.Context) {
	if c.Archive == nil {
		return
	}
	if err := c.Archive.Close(ctx); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEvent, "app.archive_close_failed").Msg("archive queue did not drain")
	}
}

// Close stops every recording session, drains the archive queue and closes
// the stores.
func (c *Core) Close(ctx context.Context) error {
	c.Recordings.Close()
	werr := c.Recordings.Wait(ctx)
	c.closeArchive(ctx)
	return errors.Join(werr, c.Stores.Close())
}

// New builds the full daemon graph from the holder's current config.
func New(ctx context.Context, holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	logger := log.WithComponent("app")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a := &App{
		Holder:    holder,
		Hub:       fanout.NewHub(),
		Health:    health.NewManager(cfg.Version),
		Telemetry: tp,
	}

	bcs := fanout.Multi{a.Hub}
	if cfg.Fanout.RedisAddr != "" {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Fanout.RedisAddr,
			Password: cfg.Fanout.RedisPassword,
			DB:       cfg.Fanout.RedisDB,
		})
		a.Redis = fanout.NewRedis(a.redisClient, cfg.Fanout.ChannelPrefix)
		// The relay drops messages from this instance, so local subscribers
		// still get them through the hub.
		bcs = append(bcs, a.Redis)
		a.Health.RegisterChecker(health.NewPingChecker("redis", func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		}))
	}

	core, err := OpenCore(ctx, cfg, bcs)
	if err != nil {
		a.closeFanout()
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	a.Core = core

	mon, err := monitor.New(monitorConfig(cfg), monitor.Deps{
		Cameras:       core.Stores.Cameras,
		Prober:        core.Prober,
		Broadcaster:   bcs,
		Events:        sink.NewEvents(core.Stores.Events),
		Notifications: sink.NewNotifications(core.Stores.Notifications),
	})
	if err != nil {
		_ = core.Close(ctx)
		a.closeFanout()
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("init monitor: %w", err)
	}
	a.Monitor = mon

	a.Health.RegisterChecker(health.NewPingChecker("store", core.Stores.Ping))
	a.Health.RegisterChecker(health.NewStorageChecker(core.Guard))
	a.Health.RegisterChecker(health.NewFuncChecker("monitor", func(context.Context) health.CheckResult {
		if !holder.Get().Monitor.Enabled {
			return health.CheckResult{Status: health.StatusHealthy, Message: "disabled"}
		}
		if !mon.Running() {
			return health.CheckResult{Status: health.StatusDegraded, Message: "not running"}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	}))

	ws := a.Hub.Handler(cfg.Fanout.AllowedOrigins)
	if !cfg.Fanout.WebSocket {
		ws = nil
	}
	a.Server = opsapi.New(opsapi.Config{
		Listen:         cfg.Server.Listen,
		RateLimit:      cfg.Server.RateLimit,
		AllowedOrigins: cfg.Fanout.AllowedOrigins,
		ThumbnailsDir:  cfg.Recordings.ThumbnailsDir,
		ServiceName:    cfg.Telemetry.ServiceName,
	}, opsapi.Deps{Health: a.Health, WebSocket: ws})

	logger.Info().
		Str(log.FieldEvent, "app.wired").
		Str("version", cfg.Version).
		Str("listen", cfg.Server.Listen).
		Bool("redis", a.Redis != nil).
		Bool("archive", core.Archive != nil).
		Bool("telemetry", tp.Enabled()).
		Msg("daemon wired")
	return a, nil
}

func monitorConfig(cfg config.AppConfig) monitor.Config {
	return monitor.Config{
		Interval:         cfg.Monitor.Interval,
		OfflineThreshold: cfg.Monitor.OfflineThreshold,
		ErrorBackoff:     cfg.Monitor.ErrorBackoff,
		Concurrency:      cfg.Monitor.Concurrency,
		ProbeRate:        cfg.Monitor.ProbeRate,
	}
}

// Run starts the background workers and the ops server, then blocks until
// ctx is cancelled or the server fails. Shutdown runs before Run returns.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Holder.Get()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Monitor.Enabled {
		a.Monitor.Start(runCtx)
	}
	a.Recordings.StartRetention(runCtx)

	if a.Redis != nil {
		a.goBackground(func() {
			if err := a.Redis.Relay(runCtx, a.Hub); err != nil {
				a.logger.Error().Err(err).Str(log.FieldEvent, "app.relay_failed").Msg("redis relay stopped")
			}
		})
	}

	reloads := make(chan config.AppConfig, 1)
	a.Holder.RegisterListener(reloads)
	a.goBackground(func() { a.applyReloads(runCtx, reloads) })
	if err := a.Holder.StartWatcher(runCtx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "app.watcher_failed").Msg("config hot reload unavailable")
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Server.ListenAndServe() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	cancel()

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = ShutdownTimeout
	}
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer stop()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

func (a *App) goBackground(fn func()) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn()
	}()
}

// applyReloads pushes reloaded settings into the running components.
func (a *App) applyReloads(ctx context.Context, ch <-chan config.AppConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-ch:
			a.Monitor.ApplyConfig(monitorConfig(cfg))
			a.Guard.SetLimits(cfg.Recordings.WarningThreshold, cfg.Recordings.MaxStorageBytes)
			log.Reconfigure(log.Config{Level: cfg.Log.Level, Service: "camfleetd", Version: cfg.Version})
			a.logger.Info().Str(log.FieldEvent, "app.config_applied").Msg("reloaded configuration applied")
		}
	}
}

// Shutdown stops everything in dependency order. It is safe to call twice.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ops server: %w", err))
		}
		a.Holder.Stop()
		a.Monitor.Stop()
		if err := a.Core.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		a.closeFanout()
		a.bg.Wait()
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
		a.logger.Info().Str(log.FieldEvent, "app.stopped").Msg("daemon stopped")
	})
	return errors.Join(errs...)
}

func (a *App) closeFanout() {
	a.Hub.Close()
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
}

// ShutdownTimeout is the fallback used when the config leaves it unset.
const ShutdownTimeout = 15 * time.Second
