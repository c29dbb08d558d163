// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/camfleet/internal/domain/camera"
)

const cameraColumns = "id, name, url, username, password, status, last_seen_ms, created_at_ms, updated_at_ms"

// Cameras implements camera.Store.
type Cameras struct {
	db *sql.DB
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCamera(row scanner) (camera.Camera, error) {
	var (
		c                  camera.Camera
		status             string
		lastSeen           sql.NullInt64
		createdMs, updated int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &c.Credentials.Username, &c.Credentials.Password,
		&status, &lastSeen, &createdMs, &updated); err != nil {
		return camera.Camera{}, err
	}
	c.Status = camera.Status(status)
	c.LastSeen = timePtr(lastSeen)
	c.CreatedAt = fromMillis(createdMs)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func (s *Cameras) List(ctx context.Context) ([]camera.Camera, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+cameraColumns+" FROM cameras ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var out []camera.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Cameras) GetByID(ctx context.Context, id string) (*camera.Camera, error) {
	c, err := scanCamera(s.db.QueryRowContext(ctx, "SELECT "+cameraColumns+" FROM cameras WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get camera %s: %w", id, err)
	}
	return &c, nil
}

func (s *Cameras) Add(ctx context.Context, c camera.Camera) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO cameras ("+cameraColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Name, c.URL, c.Credentials.Username, c.Credentials.Password, string(c.Status),
		nullMillis(c.LastSeen), toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", camera.ErrExists, c.ID)
		}
		return fmt.Errorf("add camera %s: %w", c.ID, err)
	}
	return nil
}

func (s *Cameras) Update(ctx context.Context, c camera.Camera) (*camera.Camera, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE cameras SET name = ?, url = ?, username = ?, password = ?,
		status = ?, last_seen_ms = ?, created_at_ms = ?, updated_at_ms = ? WHERE id = ?`,
		c.Name, c.URL, c.Credentials.Username, c.Credentials.Password, string(c.Status),
		nullMillis(c.LastSeen), toMillis(c.CreatedAt), toMillis(c.UpdatedAt), c.ID)
	if err != nil {
		return nil, fmt.Errorf("update camera %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", camera.ErrNotFound, c.ID)
	}
	return s.GetByID(ctx, c.ID)
}
