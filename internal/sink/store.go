// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/metrics"
)

// EventStore persists events.
type EventStore interface {
	AddEvent(ctx context.Context, e Event) error
}

// NotificationStore persists notifications.
type NotificationStore interface {
	AddNotification(ctx context.Context, n Notification) error
}

// Events is an EventSink writing to an EventStore.
type Events struct {
	store EventStore
	now   func() time.Time
}

// NewEvents returns an EventSink backed by store.
func NewEvents(store EventStore) *Events {
	return &Events{store: store, now: time.Now}
}

func (s *Events) add(ctx context.Context, e Event) error {
	e.ID = uuid.NewString()
	e.CreatedAt = s.now().UTC()
	if err := s.store.AddEvent(ctx, e); err != nil {
		metrics.IncSinkFailure("event")
		return fmt.Errorf("store event %s: %w", e.Type, err)
	}
	return nil
}

func (s *Events) CameraOffline(ctx context.Context, cameraID, cameraName, description string) error {
	return s.add(ctx, Event{Type: EventCameraOffline, Severity: SeverityWarning, CameraID: cameraID, CameraName: cameraName, Description: description})
}

func (s *Events) CameraOnline(ctx context.Context, cameraID, cameraName, description string) error {
	return s.add(ctx, Event{Type: EventCameraOnline, Severity: SeverityInfo, CameraID: cameraID, CameraName: cameraName, Description: description})
}

func (s *Events) SystemError(ctx context.Context, cameraID, cameraName, description string) error {
	return s.add(ctx, Event{Type: EventSystemError, Severity: SeverityError, CameraID: cameraID, CameraName: cameraName, Description: description})
}

// RecordingEvent logs a recording lifecycle event with a generated description.
func (s *Events) RecordingEvent(ctx context.Context, t EventType, rec recording.Recording) error {
	e := Event{
		Type:        t,
		Severity:    SeverityInfo,
		CameraID:    rec.CameraID,
		CameraName:  rec.CameraName,
		RecordingID: rec.ID,
	}
	switch t {
	case EventRecordingStarted:
		e.Description = fmt.Sprintf("recording started (%s, %s)", rec.Format, rec.Quality)
	case EventRecordingStopped:
		e.Description = fmt.Sprintf("recording stopped after %s", rec.Duration.Round(time.Second))
	case EventRecordingFailed:
		e.Severity = SeverityError
		e.Description = "recording failed"
		if rec.FailureReason != "" {
			e.Description += ": " + rec.FailureReason
		}
	default:
		e.Description = string(t)
	}
	return s.add(ctx, e)
}

// Notifications is a NotificationSink writing to a NotificationStore.
type Notifications struct {
	store NotificationStore
	now   func() time.Time
}

// NewNotifications returns a NotificationSink backed by store.
func NewNotifications(store NotificationStore) *Notifications {
	return &Notifications{store: store, now: time.Now}
}

func (s *Notifications) Warning(ctx context.Context, title, message, cameraID string) error {
	return s.Notify(ctx, Notification{Title: title, Message: message, Type: NotificationWarning, Priority: PriorityHigh, CameraID: cameraID})
}

func (s *Notifications) Error(ctx context.Context, title, message, cameraID string) error {
	return s.Notify(ctx, Notification{Title: title, Message: message, Type: NotificationError, Priority: PriorityCritical, CameraID: cameraID})
}

// Notify stores n, filling ID, CreatedAt and the defaults for Type and Priority.
func (s *Notifications) Notify(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = NotificationInfo
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := s.store.AddNotification(ctx, n); err != nil {
		metrics.IncSinkFailure("notification")
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}
