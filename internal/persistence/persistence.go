// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package persistence opens the configured store backend.
package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/camfleet/internal/domain/camera"
	"github.com/ManuGH/camfleet/internal/domain/recording"
	"github.com/ManuGH/camfleet/internal/persistence/badger"
	"github.com/ManuGH/camfleet/internal/persistence/memory"
	"github.com/ManuGH/camfleet/internal/persistence/sqlite"
	"github.com/ManuGH/camfleet/internal/sink"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Stores bundles every repository of one backend.
type Stores struct {
	Backend       string
	Cameras       camera.Store
	Recordings    recording.Store
	Events        sink.EventStore
	Notifications sink.NotificationStore
	ping          func(ctx context.Context) error
	close         func() error
}

// Ping checks the backend is usable. Backends without connections always succeed.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backend.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open creates the stores for backend at path. An empty backend means sqlite.
func Open(backend, path string) (*Stores, error) {
	if backend == "" {
		backend = BackendSQLite
	}

	switch backend {
	case BackendMemory:
		m := memory.New()
		return &Stores{
			Backend: backend, Cameras: m.Cameras(), Recordings: m.Recordings(),
			Events: m, Notifications: m, close: m.Close,
		}, nil
	case BackendBadger:
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		b, err := badger.Open(path)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Backend: backend, Cameras: b.Cameras(), Recordings: b.Recordings(),
			Events: b, Notifications: b, close: b.Close,
		}, nil
	case BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		s, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Backend: backend, Cameras: s.Cameras(), Recordings: s.Recordings(),
			Events: s, Notifications: s, ping: s.Ping, close: s.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
