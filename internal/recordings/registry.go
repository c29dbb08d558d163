// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recordings

import (
	"sync"

	"github.com/ManuGH/camfleet/internal/domain/recording"
)

// registry maps camera id to its single live session. A slot is reserved
// before admission and becomes visible to stop/pause once ready.
type registry struct {
	mu    sync.Mutex
	slots map[string]*session
}

func newRegistry() *registry {
	return &registry{slots: make(map[string]*session)}
}

// reserve inserts s for cameraID unless the camera already has a slot.
func (r *registry) reserve(cameraID string, s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.slots[cameraID]; taken {
		return false
	}
	r.slots[cameraID] = s
	return true
}

func (r *registry) markReady(cameraID string, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[cameraID] == s {
		s.ready = true
	}
}

// release drops the slot only if it still holds s.
func (r *registry) release(cameraID string, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[cameraID] == s {
		delete(r.slots, cameraID)
	}
}

// take removes and returns the ready session of cameraID.
func (r *registry) take(cameraID string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[cameraID]
	if !ok || !s.ready {
		return nil, false
	}
	delete(r.slots, cameraID)
	return s, true
}

// takeIf removes cameraID only when it still maps to s.
func (r *registry) takeIf(cameraID string, s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[cameraID] != s || !s.ready {
		return false
	}
	delete(r.slots, cameraID)
	return true
}

func (r *registry) get(cameraID string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[cameraID]
	if !ok || !s.ready {
		return nil, false
	}
	return s, true
}

func (r *registry) cameras() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.slots))
	for id, s := range r.slots {
		if s.ready {
			out = append(out, id)
		}
	}
	return out
}

// recordingIDs returns the ids of every reserved or live session.
func (r *registry) recordingIDs() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.slots))
	for _, s := range r.slots {
		out[s.id] = struct{}{}
	}
	return out
}

func (r *registry) snapshot() map[string]recording.Recording {
	r.mu.Lock()
	sessions := make(map[string]*session, len(r.slots))
	for id, s := range r.slots {
		if s.ready {
			sessions[id] = s
		}
	}
	r.mu.Unlock()

	out := make(map[string]recording.Recording, len(sessions))
	for id, s := range sessions {
		out[id] = s.snapshot()
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.slots {
		if s.ready {
			n++
		}
	}
	return n
}
