// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sqlite is the default store backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
)

const schemaVersion = 2

// Store owns the database handle shared by the camera, recording, event and
// notification tables.
type Store struct {
	DB *sql.DB
}

// New opens dbPath and migrates the schema.
func New(dbPath string) (*Store, error) {
	db, err := Open(dbPath, DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: migration failed: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Cameras returns the camera.Store view.
func (s *Store) Cameras() camera.Store { return &Cameras{db: s.DB} }

// Recordings returns the recording.Store view.
func (s *Store) Recordings() recording.Store { return &Recordings{db: s.DB} }

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS cameras (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		last_seen_ms INTEGER,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		camera_id TEXT NOT NULL,
		camera_name TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL,
		quality TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time_ms INTEGER NOT NULL,
		end_time_ms INTEGER,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		file_path TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_camera ON recordings(camera_id, start_time_ms);
	CREATE INDEX IF NOT EXISTS idx_recordings_start ON recordings(start_time_ms);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		camera_id TEXT NOT NULL DEFAULT '',
		camera_name TEXT NOT NULL DEFAULT '',
		recording_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at_ms);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL,
		priority TEXT NOT NULL,
		camera_id TEXT NOT NULL DEFAULT '',
		recording_id TEXT NOT NULL DEFAULT '',
		extras_json TEXT,
		created_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}

	if current < 2 {
		// v1 databases predate failure reasons; a fresh table already has the column.
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM pragma_table_info('recordings') WHERE name = 'failure_reason'").Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			if _, err := tx.ExecContext(ctx, "ALTER TABLE recordings ADD COLUMN failure_reason TEXT NOT NULL DEFAULT ''"); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
