// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package badger is the embedded key-value store backend.
//
// Layout:
//   - cameras: key = "cam:<id>" (JSON)
//   - recordings: key = "rec:<id>" (JSON)
//   - events: key = "evt:<created millis>:<id>" (JSON)
//   - notifications: key = "ntf:<created millis>:<id>" (JSON)
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/sink"
)

const (
	prefixCamera       = "cam:"
	prefixRecording    = "rec:"
	prefixEvent        = "evt:"
	prefixNotification = "ntf:"
)

// Store wraps a badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates the database directory at path.
func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger: open failed: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store without a backing directory.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger: open failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Cameras returns the camera.Store view.
func (s *Store) Cameras() camera.Store { return cameraStore{s} }

// Recordings returns the recording.Store view.
func (s *Store) Recordings() recording.Store { return recordingStore{s} }

func (s *Store) put(key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
}

// get decodes key into v. It reports false when the key does not exist.
func (s *Store) get(key string, v any) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// replace overwrites key only if it exists.
func (s *Store) replace(key string, v any, notFound error) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound
			}
			return err
		}
		return txn.Set([]byte(key), buf)
	})
}

// scan decodes every value under prefix, in key order or reversed, until fn
// returns false.
func (s *Store) scan(prefix string, reverse bool, decode func(val []byte) (bool, error)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(prefix)
		if reverse {
			seek = append([]byte(prefix), 0xFF)
		}
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			var more bool
			if err := it.Item().Value(func(val []byte) error {
				var err error
				more, err = decode(val)
				return err
			}); err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

type cameraStore struct{ s *Store }

func (c cameraStore) List(_ context.Context) ([]camera.Camera, error) {
	var out []camera.Camera
	err := c.s.scan(prefixCamera, false, func(val []byte) (bool, error) {
		var cam camera.Camera
		if err := json.Unmarshal(val, &cam); err != nil {
			return false, err
		}
		out = append(out, cam)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	return out, nil
}

func (c cameraStore) GetByID(_ context.Context, id string) (*camera.Camera, error) {
	var cam camera.Camera
	ok, err := c.s.get(prefixCamera+id, &cam)
	if err != nil {
		return nil, fmt.Errorf("get camera %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &cam, nil
}

func (c cameraStore) Add(_ context.Context, cam camera.Camera) error {
	buf, err := json.Marshal(cam)
	if err != nil {
		return err
	}
	key := []byte(prefixCamera + cam.ID)
	return c.s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", camera.ErrExists, cam.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, buf)
	})
}

func (c cameraStore) Update(_ context.Context, cam camera.Camera) (*camera.Camera, error) {
	if err := c.s.replace(prefixCamera+cam.ID, cam, fmt.Errorf("%w: %s", camera.ErrNotFound, cam.ID)); err != nil {
		return nil, err
	}
	return &cam, nil
}

type recordingStore struct{ s *Store }

func (r recordingStore) Add(_ context.Context, rec recording.Recording) error {
	if err := r.s.put(prefixRecording+rec.ID, rec); err != nil {
		return fmt.Errorf("add recording %s: %w", rec.ID, err)
	}
	return nil
}

func (r recordingStore) Update(_ context.Context, rec recording.Recording) error {
	return r.s.replace(prefixRecording+rec.ID, rec, fmt.Errorf("%w: %s", recording.ErrNotFound, rec.ID))
}

func (r recordingStore) Delete(_ context.Context, id string) error {
	key := []byte(prefixRecording + id)
	return r.s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", recording.ErrNotFound, id)
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (r recordingStore) GetByID(_ context.Context, id string) (*recording.Recording, error) {
	var rec recording.Recording
	ok, err := r.s.get(prefixRecording+id, &rec)
	if err != nil {
		return nil, fmt.Errorf("get recording %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// List loads every recording and pages in memory; badger has no secondary indexes.
func (r recordingStore) List(_ context.Context, filter recording.Filter, page, limit int) (recording.Page, error) {
	var all []recording.Recording
	err := r.s.scan(prefixRecording, false, func(val []byte) (bool, error) {
		var rec recording.Recording
		if err := json.Unmarshal(val, &rec); err != nil {
			return false, err
		}
		if filter.Matches(rec) {
			all = append(all, rec)
		}
		return true, nil
	})
	if err != nil {
		return recording.Page{}, fmt.Errorf("list recordings: %w", err)
	}
	return recording.Paginate(all, filter, page, limit), nil
}

func timeKey(prefix string, ms int64, id string) string {
	return fmt.Sprintf("%s%020d:%s", prefix, ms, id)
}

// AddEvent implements sink.EventStore.
func (s *Store) AddEvent(_ context.Context, e sink.Event) error {
	return s.put(timeKey(prefixEvent, e.CreatedAt.UnixMilli(), e.ID), e)
}

// AddNotification implements sink.NotificationStore.
func (s *Store) AddNotification(_ context.Context, n sink.Notification) error {
	return s.put(timeKey(prefixNotification, n.CreatedAt.UnixMilli(), n.ID), n)
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(_ context.Context, limit int) ([]sink.Event, error) {
	var out []sink.Event
	if limit <= 0 {
		return out, nil
	}
	err := s.scan(prefixEvent, true, func(val []byte) (bool, error) {
		var e sink.Event
		if err := json.Unmarshal(val, &e); err != nil {
			return false, err
		}
		out = append(out, e)
		return len(out) < limit, nil
	})
	return out, err
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *Store) RecentNotifications(_ context.Context, limit int) ([]sink.Notification, error) {
	var out []sink.Notification
	if limit <= 0 {
		return out, nil
	}
	err := s.scan(prefixNotification, true, func(val []byte) (bool, error) {
		var n sink.Notification
		if err := json.Unmarshal(val, &n); err != nil {
			return false, err
		}
		out = append(out, n)
		return len(out) < limit, nil
	})
	return out, err
}
