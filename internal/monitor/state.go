// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package monitor

import (
	"sync"
	"time"
)

// entry is the per-camera probe history. It lives for the process lifetime.
type entry struct {
	mu         sync.Mutex
	lastCheck  time.Time
	lastOnline time.Time
}

func (e *entry) checked(at time.Time, online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCheck = at
	if online {
		e.lastOnline = at
	}
}

func (e *entry) online() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOnline
}

type states struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func (s *states) get(cameraID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]*entry)
	}
	e, ok := s.entries[cameraID]
	if !ok {
		e = &entry{}
		s.entries[cameraID] = e
	}
	return e
}
