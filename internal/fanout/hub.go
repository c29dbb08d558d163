// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/metrics"
)

const sendBuffer = 256

// subscriber is one consumer of hub messages, either a WebSocket client or
// an in-process listener.
type subscriber struct {
	id       string
	channels map[string]struct{}
	send     chan Message
}

// Hub keeps channel -> subscribers and delivers locally.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	byChan map[string]map[string]*subscriber
	closed bool
	logger zerolog.Logger
	now    func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]*subscriber),
		byChan: make(map[string]map[string]*subscriber),
		logger: log.WithComponent("fanout"),
		now:    time.Now,
	}
}

func (h *Hub) register(channels []string) *subscriber {
	s := &subscriber{
		id:       uuid.NewString(),
		channels: make(map[string]struct{}, len(channels)),
		send:     make(chan Message, sendBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.send)
		return s
	}
	h.subs[s.id] = s
	for _, ch := range channels {
		h.addLocked(s, ch)
	}
	metrics.SetWSClients(len(h.subs))
	return s
}

func (h *Hub) addLocked(s *subscriber, channel string) {
	if channel == "" {
		return
	}
	s.channels[channel] = struct{}{}
	m := h.byChan[channel]
	if m == nil {
		m = make(map[string]*subscriber)
		h.byChan[channel] = m
	}
	m[s.id] = s
}

func (h *Hub) subscribe(s *subscriber, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; ok {
		h.addLocked(s, channel)
	}
}

func (h *Hub) unsubscribe(s *subscriber, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(s.channels, channel)
	if m := h.byChan[channel]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(h.byChan, channel)
		}
	}
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	for ch := range s.channels {
		if m := h.byChan[ch]; m != nil {
			delete(m, s.id)
			if len(m) == 0 {
				delete(h.byChan, ch)
			}
		}
	}
	close(s.send)
	metrics.SetWSClients(len(h.subs))
}

// Subscribe registers an in-process listener on channels. The returned
// cancel func unregisters it and closes the channel.
func (h *Hub) Subscribe(channels ...string) (<-chan Message, func()) {
	s := h.register(channels)
	return s.send, func() { h.unregister(s) }
}

// Clients returns the number of registered subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast implements Broadcaster for local subscribers.
func (h *Hub) Broadcast(_ context.Context, channel, eventType string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		metrics.IncBroadcast("ws", "encode_error")
		return err
	}
	h.Deliver(Message{Channel: channel, Event: eventType, Data: data, At: h.now().UnixMilli()})
	return nil
}

// Deliver hands msg to every subscriber of msg.Channel. Slow subscribers
// with a full buffer miss the message.
func (h *Hub) Deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for _, s := range h.byChan[msg.Channel] {
		select {
		case s.send <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		metrics.IncBroadcast("ws", "dropped")
		h.logger.Debug().Str(log.FieldEvent, "fanout.dropped").Str(log.FieldChannel, msg.Channel).Int("dropped", dropped).Msg("subscriber buffer full")
		return
	}
	metrics.IncBroadcast("ws", "ok")
}

// Close unregisters every subscriber. Later registrations get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.closed = true
	h.mu.Unlock()
	for _, s := range subs {
		h.unregister(s)
	}
}
