// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recordings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/fsutil"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/metrics"
	"github.com/ManuGH/camfleet/internal/telemetry"
)

const retentionPageSize = 100

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Deleted    int
	FreedBytes int64
	Errors     []error
}

// StartRetention runs SweepOnce every RetentionInterval until Close.
// Calling it again while running is a no-op.
func (o *Orchestrator) StartRetention(ctx context.Context) {
	o.retMu.Lock()
	defer o.retMu.Unlock()
	if o.retCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	o.retCancel = cancel
	o.retDone = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		o.RunRetention(ctx)
	}(o.retDone)
}

// RunRetention blocks, sweeping on every tick until ctx ends.
func (o *Orchestrator) RunRetention(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.RetentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := o.SweepOnce(ctx)
			if len(res.Errors) > 0 {
				o.logger.Warn().Err(errors.Join(res.Errors...)).Str(log.FieldEvent, "retention.errors").Int("errors", len(res.Errors)).Msg("retention sweep had errors")
			}
		}
	}
}

func (o *Orchestrator) stopRetention() {
	o.retMu.Lock()
	cancel, done := o.retCancel, o.retDone
	o.retCancel, o.retDone = nil, nil
	o.retMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// SweepOnce deletes recordings created before now-MaxAge and, with a quota
// configured, the oldest finished recordings until usage fits the quota.
// Live sessions are never touched.
func (o *Orchestrator) SweepOnce(ctx context.Context) (res SweepResult) {
	ctx, span := o.tracer.Start(ctx, "recordings.sweep")
	defer func() {
		span.SetAttributes(telemetry.RetentionAttributes(res.Deleted, res.FreedBytes)...)
		span.End()
	}()

	cutoff := o.now().UTC().Add(-o.cfg.MaxAge)
	live := o.reg.recordingIDs()

	err := o.walk(ctx, recording.Filter{EndTime: &cutoff}, func(rec recording.Recording) (bool, bool) {
		if _, ok := live[rec.ID]; ok || !rec.CreatedAt.Before(cutoff) {
			return false, false
		}
		return o.remove(ctx, rec, &res), false
	})
	if err != nil {
		res.Errors = append(res.Errors, err)
		return res
	}

	if o.cfg.MaxStorageBytes > 0 && ctx.Err() == nil {
		o.enforceQuota(ctx, &res)
	}

	if res.Deleted > 0 || len(res.Errors) > 0 {
		metrics.AddRetentionDeleted(res.Deleted, res.FreedBytes)
		o.logger.Info().
			Str(log.FieldEvent, "retention.sweep").
			Int("deleted", res.Deleted).
			Str("freed", humanize.IBytes(uint64(max(res.FreedBytes, 0)))).
			Float64("freed_mb", float64(res.FreedBytes)/(1024*1024)).
			Int("errors", len(res.Errors)).
			Msg("retention sweep finished")
	}
	return res
}

// walk visits matching recordings one page at a time in store order. visit
// reports whether it removed the record and whether to stop. Removed records
// shift later pages back, so the next page is computed from the kept count.
func (o *Orchestrator) walk(ctx context.Context, filter recording.Filter, visit func(recording.Recording) (removed, stop bool)) error {
	kept := 0
	for ctx.Err() == nil {
		page := kept/retentionPageSize + 1
		p, err := o.store.List(ctx, filter, page, retentionPageSize)
		if err != nil {
			return fmt.Errorf("list recordings page %d: %w", page, err)
		}
		skip := kept % retentionPageSize
		if skip >= len(p.Items) {
			return nil
		}
		for _, rec := range p.Items[skip:] {
			if ctx.Err() != nil {
				return nil
			}
			removed, stop := visit(rec)
			if stop {
				return nil
			}
			if !removed {
				kept++
			}
		}
		if !p.HasMore {
			return nil
		}
	}
	return nil
}

// enforceQuota removes the oldest finished recordings, in start order, until
// usage fits the quota.
func (o *Orchestrator) enforceQuota(ctx context.Context, res *SweepResult) {
	if o.guard.Used() <= o.cfg.MaxStorageBytes {
		return
	}
	live := o.reg.recordingIDs()
	err := o.walk(ctx, recording.Filter{}, func(rec recording.Recording) (bool, bool) {
		if o.guard.Used() <= o.cfg.MaxStorageBytes {
			return false, true
		}
		if _, ok := live[rec.ID]; ok || !rec.Status.IsTerminal() {
			return false, false
		}
		return o.remove(ctx, rec, res), false
	})
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
}

// remove deletes the media, thumbnail and sidecar, then the record. A file
// error does not stop the remaining deletions.
func (o *Orchestrator) remove(ctx context.Context, rec recording.Recording, res *SweepResult) bool {
	logger := o.logger.With().Str(log.FieldRecordingID, rec.ID).Str(log.FieldCameraID, rec.CameraID).Logger()

	files := []struct {
		root, path string
	}{
		{o.cfg.RecordingsDir, rec.FilePath},
		{o.cfg.ThumbnailsDir, filepath.Join(o.cfg.ThumbnailsDir, rec.ID+".jpg")},
	}
	if rec.FilePath != "" {
		files = append(files, struct{ root, path string }{o.cfg.RecordingsDir, sidecarPath(rec.FilePath)})
	}
	for _, f := range files {
		n, err := fsutil.RemoveConfined(f.root, f.path)
		res.FreedBytes += n
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("recording %s: %w", rec.ID, err))
			logger.Warn().Err(err).Str(log.FieldEvent, "retention.file_delete_failed").Str(log.FieldPath, f.path).Msg("cannot delete recording file")
		}
	}

	if err := o.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, recording.ErrNotFound) {
		res.Errors = append(res.Errors, fmt.Errorf("recording %s: delete record: %w", rec.ID, err))
		logger.Warn().Err(err).Str(log.FieldEvent, "retention.record_delete_failed").Msg("cannot delete recording record")
		return false
	}
	res.Deleted++
	logger.Debug().Str(log.FieldEvent, "retention.deleted").Msg("recording removed by retention")
	return true
}
