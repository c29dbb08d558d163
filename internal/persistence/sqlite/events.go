// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/camfleet/internal/sink"
)

// AddEvent implements sink.EventStore.
func (s *Store) AddEvent(ctx context.Context, e sink.Event) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO events (id, type, severity, camera_id, camera_name, recording_id, description, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), string(e.Severity), e.CameraID, e.CameraName, e.RecordingID, e.Description, toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("add event: %w", err)
	}
	return nil
}

// AddNotification implements sink.NotificationStore.
func (s *Store) AddNotification(ctx context.Context, n sink.Notification) error {
	var extras sql.NullString
	if len(n.Extras) > 0 {
		b, err := json.Marshal(n.Extras)
		if err != nil {
			return fmt.Errorf("encode notification extras: %w", err)
		}
		extras = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO notifications (id, title, message, type, priority, camera_id, recording_id, extras_json, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Message, string(n.Type), string(n.Priority), n.CameraID, n.RecordingID, extras, toMillis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("add notification: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]sink.Event, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, type, severity, camera_id, camera_name, recording_id, description, created_at_ms
		FROM events ORDER BY created_at_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []sink.Event
	for rows.Next() {
		var (
			e         sink.Event
			typ, sev  string
			createdMs int64
		)
		if err := rows.Scan(&e.ID, &typ, &sev, &e.CameraID, &e.CameraName, &e.RecordingID, &e.Description, &createdMs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = sink.EventType(typ)
		e.Severity = sink.Severity(sev)
		e.CreatedAt = fromMillis(createdMs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]sink.Notification, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, title, message, type, priority, camera_id, recording_id, extras_json, created_at_ms
		FROM notifications ORDER BY created_at_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []sink.Notification
	for rows.Next() {
		var (
			n         sink.Notification
			typ, prio string
			extras    sql.NullString
			createdMs int64
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &typ, &prio, &n.CameraID, &n.RecordingID, &extras, &createdMs); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = sink.NotificationType(typ)
		n.Priority = sink.Priority(prio)
		n.CreatedAt = fromMillis(createdMs)
		if extras.Valid {
			if err := json.Unmarshal([]byte(extras.String), &n.Extras); err != nil {
				return nil, fmt.Errorf("decode notification extras: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
