// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sink holds the event log and notification contracts the monitor
// and the recording orchestrator report into. Calls are fire-and-forget:
// the returned error is only logged by callers.
package sink

import (
	"context"
	"time"

	"github.com/ManuGH/camfleet/internal/domain/recording"
)

// EventType classifies a persisted event.
type EventType string

const (
	EventCameraOffline    EventType = "CAMERA_OFFLINE"
	EventCameraOnline     EventType = "CAMERA_ONLINE"
	EventSystemError      EventType = "SYSTEM_ERROR"
	EventRecordingStarted EventType = "RECORDING_STARTED"
	EventRecordingStopped EventType = "RECORDING_STOPPED"
	EventRecordingFailed  EventType = "RECORDING_FAILED"
)

// Severity of an event.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Event is one entry of the write-once event log.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Severity    Severity  `json:"severity"`
	CameraID    string    `json:"cameraId,omitempty"`
	CameraName  string    `json:"cameraName,omitempty"`
	RecordingID string    `json:"recordingId,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NotificationType is the display class of a notification.
type NotificationType string

const (
	NotificationInfo    NotificationType = "INFO"
	NotificationWarning NotificationType = "WARNING"
	NotificationError   NotificationType = "ERROR"
	NotificationSuccess NotificationType = "SUCCESS"
)

// Priority of a notification.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Notification is a user-facing message.
type Notification struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Type        NotificationType  `json:"type"`
	Priority    Priority          `json:"priority"`
	CameraID    string            `json:"cameraId,omitempty"`
	RecordingID string            `json:"recordingId,omitempty"`
	Extras      map[string]string `json:"extras,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// EventSink records domain events.
type EventSink interface {
	CameraOffline(ctx context.Context, cameraID, cameraName, description string) error
	CameraOnline(ctx context.Context, cameraID, cameraName, description string) error
	SystemError(ctx context.Context, cameraID, cameraName, description string) error
	RecordingEvent(ctx context.Context, t EventType, rec recording.Recording) error
}

// NotificationSink delivers notifications.
type NotificationSink interface {
	Warning(ctx context.Context, title, message, cameraID string) error
	Error(ctx context.Context, title, message, cameraID string) error
	Notify(ctx context.Context, n Notification) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) CameraOffline(context.Context, string, string, string) error { return nil }
func (Nop) CameraOnline(context.Context, string, string, string) error  { return nil }
func (Nop) SystemError(context.Context, string, string, string) error   { return nil }
func (Nop) RecordingEvent(context.Context, EventType, recording.Recording) error {
	return nil
}
func (Nop) Warning(context.Context, string, string, string) error { return nil }
func (Nop) Error(context.Context, string, string, string) error   { return nil }
func (Nop) Notify(context.Context, Notification) error            { return nil }

// EventsOrNop returns s, or Nop when s is nil.
func EventsOrNop(s EventSink) EventSink {
	if s == nil {
		return Nop{}
	}
	return s
}

// NotificationsOrNop returns s, or Nop when s is nil.
func NotificationsOrNop(s NotificationSink) NotificationSink {
	if s == nil {
		return Nop{}
	}
	return s
}
