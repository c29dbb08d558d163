// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package memory provides in-process stores for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/sink"
)

// Store keeps cameras, recordings, events and notifications in maps.
type Store struct {
	mu            sync.RWMutex
	cameras       map[string]camera.Camera
	recordings    map[string]recording.Recording
	events        []sink.Event
	notifications []sink.Notification
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		cameras:    make(map[string]camera.Camera),
		recordings: make(map[string]recording.Recording),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Cameras returns the camera.Store view.
func (s *Store) Cameras() camera.Store { return cameraStore{s} }

// Recordings returns the recording.Store view.
func (s *Store) Recordings() recording.Store { return recordingStore{s} }

type cameraStore struct{ s *Store }

func (c cameraStore) List(_ context.Context) ([]camera.Camera, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]camera.Camera, 0, len(c.s.cameras))
	for _, cam := range c.s.cameras {
		out = append(out, cam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c cameraStore) GetByID(_ context.Context, id string) (*camera.Camera, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	cam, ok := c.s.cameras[id]
	if !ok {
		return nil, nil
	}
	return &cam, nil
}

func (c cameraStore) Add(_ context.Context, cam camera.Camera) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.cameras[cam.ID]; ok {
		return fmt.Errorf("%w: %s", camera.ErrExists, cam.ID)
	}
	c.s.cameras[cam.ID] = cam
	return nil
}

func (c cameraStore) Update(_ context.Context, cam camera.Camera) (*camera.Camera, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.cameras[cam.ID]; !ok {
		return nil, fmt.Errorf("%w: %s", camera.ErrNotFound, cam.ID)
	}
	c.s.cameras[cam.ID] = cam
	return &cam, nil
}

type recordingStore struct{ s *Store }

func (r recordingStore) Add(_ context.Context, rec recording.Recording) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.recordings[rec.ID] = rec
	return nil
}

func (r recordingStore) Update(_ context.Context, rec recording.Recording) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.recordings[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", recording.ErrNotFound, rec.ID)
	}
	r.s.recordings[rec.ID] = rec
	return nil
}

func (r recordingStore) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.recordings[id]; !ok {
		return fmt.Errorf("%w: %s", recording.ErrNotFound, id)
	}
	delete(r.s.recordings, id)
	return nil
}

func (r recordingStore) GetByID(_ context.Context, id string) (*recording.Recording, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.recordings[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r recordingStore) List(_ context.Context, filter recording.Filter, page, limit int) (recording.Page, error) {
	r.s.mu.RLock()
	all := make([]recording.Recording, 0, len(r.s.recordings))
	for _, rec := range r.s.recordings {
		all = append(all, rec)
	}
	r.s.mu.RUnlock()
	return recording.Paginate(all, filter, page, limit), nil
}

// AddEvent implements sink.EventStore.
func (s *Store) AddEvent(_ context.Context, e sink.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// AddNotification implements sink.NotificationStore.
func (s *Store) AddNotification(_ context.Context, n sink.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// Events returns a copy of the stored events in insertion order.
func (s *Store) Events() []sink.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]sink.Event(nil), s.events...)
}

// Notifications returns a copy of the stored notifications in insertion order.
func (s *Store) Notifications() []sink.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]sink.Notification(nil), s.notifications...)
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(_ context.Context, limit int) ([]sink.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sink.Event, 0, min(limit, len(s.events)))
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *Store) RecentNotifications(_ context.Context, limit int) ([]sink.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sink.Notification, 0, min(limit, len(s.notifications)))
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.notifications[i])
	}
	return out, nil
}
