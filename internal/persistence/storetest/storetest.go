// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package storetest holds the behaviour every store backend must share.
// Backend tests call it with a freshly opened store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/sink"
)

// SinkStore is the event and notification side of a backend.
type SinkStore interface {
	sink.EventStore
	sink.NotificationStore
	RecentEvents(ctx context.Context, limit int) ([]sink.Event, error)
	RecentNotifications(ctx context.Context, limit int) ([]sink.Notification, error)
}

// Base is a millisecond-aligned UTC timestamp; every backend keeps millis.
var Base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// CameraStore exercises a camera.Store.
func CameraStore(t *testing.T, s camera.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	back := camera.Camera{ID: "cam-b", Name: "Back", URL: "rtsp://10.0.0.2/1", Status: camera.StatusUnknown, CreatedAt: Base, UpdatedAt: Base}
	front := camera.Camera{
		ID: "cam-a", Name: "Front", URL: "rtsp://10.0.0.1/1",
		Credentials: camera.Credentials{Username: "admin", Password: "secret"},
		Status:      camera.StatusUnknown, CreatedAt: Base, UpdatedAt: Base,
	}
	require.NoError(t, s.Add(ctx, back))
	require.NoError(t, s.Add(ctx, front))
	assert.ErrorIs(t, s.Add(ctx, front), camera.ErrExists)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cam-a", list[0].ID)
	if diff := cmp.Diff(front, list[0]); diff != "" {
		t.Errorf("camera mismatch (-want +got):\n%s", diff)
	}

	seen := Base.Add(time.Minute)
	front.Status = camera.StatusOnline
	front.LastSeen = &seen
	front.UpdatedAt = seen
	updated, err := s.Update(ctx, front)
	require.NoError(t, err)
	require.NotNil(t, updated)
	if diff := cmp.Diff(front, *updated); diff != "" {
		t.Errorf("updated camera mismatch (-want +got):\n%s", diff)
	}

	got, err = s.GetByID(ctx, "cam-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, camera.StatusOnline, got.Status)
	require.NotNil(t, got.LastSeen)
	assert.True(t, seen.Equal(*got.LastSeen))

	_, err = s.Update(ctx, camera.Camera{ID: "ghost", Status: camera.StatusOnline})
	assert.ErrorIs(t, err, camera.ErrNotFound)
}

// RecordingStore exercises a recording.Store.
func RecordingStore(t *testing.T, s recording.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	for i := 0; i < 5; i++ {
		start := Base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Add(ctx, recording.Recording{
			ID: "r" + string(rune('0'+i)), CameraID: "c1", CameraName: "Front",
			Format: recording.FormatMP4, Quality: recording.QualityMedium, Status: recording.StatusActive,
			StartTime: start, CreatedAt: start,
		}))
	}
	require.NoError(t, s.Add(ctx, recording.Recording{
		ID: "other", CameraID: "c2", Format: recording.FormatMKV, Quality: recording.QualityLow,
		Status: recording.StatusActive, StartTime: Base, CreatedAt: Base,
	}))

	page, err := s.List(ctx, recording.Filter{CameraID: "c1"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "r0", page.Items[0].ID)

	page, err = s.List(ctx, recording.Filter{CameraID: "c1"}, 3, 2)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "r4", page.Items[0].ID)

	from, to := Base.Add(time.Hour), Base.Add(3*time.Hour)
	page, err = s.List(ctx, recording.Filter{StartTime: &from, EndTime: &to}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	rec, err := s.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.EndTime)

	end := rec.StartTime.Add(90 * time.Second)
	rec.Status = recording.StatusCompleted
	rec.EndTime = &end
	rec.Duration = 90 * time.Second
	rec.FilePath = "/data/recordings/r1_1.mp4"
	rec.FileSize = 4096
	rec.ThumbnailURL = "/thumbnails/r1.jpg"
	rec.FailureReason = ""
	require.NoError(t, s.Update(ctx, *rec))

	again, err := s.GetByID(ctx, "r1")
	require.NoError(t, err)
	if diff := cmp.Diff(*rec, *again); diff != "" {
		t.Errorf("recording mismatch (-want +got):\n%s", diff)
	}

	assert.ErrorIs(t, s.Update(ctx, recording.Recording{ID: "ghost"}), recording.ErrNotFound)
	require.NoError(t, s.Delete(ctx, "r1"))
	assert.ErrorIs(t, s.Delete(ctx, "r1"), recording.ErrNotFound)
	gone, err := s.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

// EventAndNotificationStore exercises the sink side of a backend.
func EventAndNotificationStore(t *testing.T, s SinkStore) {
	t.Helper()
	ctx := context.Background()

	first := sink.Event{ID: "e1", Type: sink.EventCameraOffline, Severity: sink.SeverityWarning, CameraID: "c1", CameraName: "Front", Description: "camera unavailable (was ONLINE)", CreatedAt: Base}
	second := sink.Event{ID: "e2", Type: sink.EventRecordingStarted, Severity: sink.SeverityInfo, CameraID: "c1", RecordingID: "r1", CreatedAt: Base.Add(time.Second)}
	require.NoError(t, s.AddEvent(ctx, first))
	require.NoError(t, s.AddEvent(ctx, second))

	events, err := s.RecentEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	if diff := cmp.Diff(second, events[0]); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}

	n := sink.Notification{
		ID: "n1", Title: "Camera offline", Message: "Front is offline", Type: sink.NotificationWarning,
		Priority: sink.PriorityHigh, CameraID: "c1", Extras: map[string]string{"oldStatus": "ONLINE"}, CreatedAt: Base,
	}
	require.NoError(t, s.AddNotification(ctx, n))
	notes, err := s.RecentNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	if diff := cmp.Diff(n, notes[0]); diff != "" {
		t.Errorf("notification mismatch (-want +got):\n%s", diff)
	}
}
