// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/metrics"
)

const (
	defaultQueueSize     = 64
	defaultWorkers       = 2
	defaultUploadTimeout = 30 * time.Minute
)

// QueueConfig bounds the upload queue. Zero values take defaults.
type QueueConfig struct {
	Size    int
	Workers int
	Timeout time.Duration
}

// Queue runs uploads on a fixed worker pool. Enqueue never blocks.
type Queue struct {
	up      Uploader
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	ch     chan recording.Recording
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue starts the workers.
func NewQueue(up Uploader, cfg QueueConfig) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultUploadTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		up:      up,
		timeout: cfg.Timeout,
		logger:  log.WithComponent("archive"),
		ch:      make(chan recording.Recording, cfg.Size),
		ctx:     ctx,
		cancel:  cancel,
	}
	for range cfg.Workers {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Enqueue schedules rec. It returns false when the queue is full or closed.
func (q *Queue) Enqueue(rec recording.Recording) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- rec:
		return true
	default:
		metrics.IncArchiveUpload("dropped")
		return false
	}
}

// Close stops accepting work, lets queued uploads finish until ctx ends, then
// aborts what is left.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for rec := range q.ch {
		q.upload(rec)
	}
}

func (q *Queue) upload(rec recording.Recording) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	started := time.Now()
	logger := q.logger.With().Str(log.FieldRecordingID, rec.ID).Str(log.FieldCameraID, rec.CameraID).Logger()
	if err := q.up.Upload(ctx, rec); err != nil {
		metrics.IncArchiveUpload("error")
		logger.Warn().Err(err).Str(log.FieldEvent, "archive.upload_failed").Msg("archive upload failed")
		return
	}
	metrics.IncArchiveUpload("ok")
	logger.Info().Str(log.FieldEvent, "archive.uploaded").Str("key", Key(rec)).Dur("took", time.Since(started)).Msg("recording archived")
}
