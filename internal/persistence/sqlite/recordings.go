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
	"time"

	"github.com/ManuGH/camfleet/internal/domain/recording"
)

const recordingColumns = `id, camera_id, camera_name, format, quality, status, start_time_ms, end_time_ms,
	duration_ms, file_path, file_size, thumbnail_url, failure_reason, created_at_ms`

// Recordings implements recording.Store.
type Recordings struct {
	db *sql.DB
}

func scanRecording(row scanner) (recording.Recording, error) {
	var (
		r                   recording.Recording
		format, quality, st string
		startMs, createdMs  int64
		endMs               sql.NullInt64
		durationMs          int64
	)
	if err := row.Scan(&r.ID, &r.CameraID, &r.CameraName, &format, &quality, &st, &startMs, &endMs,
		&durationMs, &r.FilePath, &r.FileSize, &r.ThumbnailURL, &r.FailureReason, &createdMs); err != nil {
		return recording.Recording{}, err
	}
	r.Format = recording.Format(format)
	r.Quality = recording.Quality(quality)
	r.Status = recording.Status(st)
	r.StartTime = fromMillis(startMs)
	r.EndTime = timePtr(endMs)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	r.CreatedAt = fromMillis(createdMs)
	return r, nil
}

func recordingArgs(r recording.Recording) []any {
	return []any{
		r.ID, r.CameraID, r.CameraName, string(r.Format), string(r.Quality), string(r.Status),
		toMillis(r.StartTime), nullMillis(r.EndTime), r.Duration.Milliseconds(),
		r.FilePath, r.FileSize, r.ThumbnailURL, r.FailureReason, toMillis(r.CreatedAt),
	}
}

func (s *Recordings) Add(ctx context.Context, r recording.Recording) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO recordings ("+recordingColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		recordingArgs(r)...)
	if err != nil {
		return fmt.Errorf("add recording %s: %w", r.ID, err)
	}
	return nil
}

func (s *Recordings) Update(ctx context.Context, r recording.Recording) error {
	args := append(recordingArgs(r)[1:], r.ID)
	res, err := s.db.ExecContext(ctx, `UPDATE recordings SET camera_id = ?, camera_name = ?, format = ?, quality = ?,
		status = ?, start_time_ms = ?, end_time_ms = ?, duration_ms = ?, file_path = ?, file_size = ?,
		thumbnail_url = ?, failure_reason = ?, created_at_ms = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update recording %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", recording.ErrNotFound, r.ID)
	}
	return nil
}

func (s *Recordings) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete recording %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", recording.ErrNotFound, id)
	}
	return nil
}

func (s *Recordings) GetByID(ctx context.Context, id string) (*recording.Recording, error) {
	r, err := scanRecording(s.db.QueryRowContext(ctx, "SELECT "+recordingColumns+" FROM recordings WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording %s: %w", id, err)
	}
	return &r, nil
}

func (s *Recordings) List(ctx context.Context, f recording.Filter, page, limit int) (recording.Page, error) {
	page, limit = recording.NormalizePage(page, limit)

	var (
		where []string
		args  []any
	)
	if f.CameraID != "" {
		where = append(where, "camera_id = ?")
		args = append(args, f.CameraID)
	}
	if f.StartTime != nil {
		where = append(where, "start_time_ms >= ?")
		args = append(args, toMillis(*f.StartTime))
	}
	if f.EndTime != nil {
		where = append(where, "start_time_ms <= ?")
		args = append(args, toMillis(*f.EndTime))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recordings"+clause, args...).Scan(&total); err != nil {
		return recording.Page{}, fmt.Errorf("count recordings: %w", err)
	}

	offset := (page - 1) * limit
	rows, err := s.db.QueryContext(ctx, "SELECT "+recordingColumns+" FROM recordings"+clause+
		" ORDER BY start_time_ms, id LIMIT ? OFFSET ?", append(args, limit, offset)...)
	if err != nil {
		return recording.Page{}, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	out := recording.Page{Total: total}
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return recording.Page{}, fmt.Errorf("scan recording: %w", err)
		}
		out.Items = append(out.Items, r)
	}
	if err := rows.Err(); err != nil {
		return recording.Page{}, err
	}
	out.HasMore = offset+len(out.Items) < total
	return out, nil
}
