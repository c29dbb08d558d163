// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fanout delivers state changes to real-time subscribers.
// Delivery is best effort and never retried.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Channels used by the core.
const (
	ChannelCameras    = "cameras"
	ChannelRecordings = "recordings"
)

// Broadcaster publishes an event on a named channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, eventType string, payload any) error
}

// Message is the envelope sent to subscribers.
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
	At      int64           `json:"at"`
}

// Nop drops every broadcast.
type Nop struct{}

func (Nop) Broadcast(context.Context, string, string, any) error { return nil }

// OrNop returns b, or Nop when b is nil.
func OrNop(b Broadcaster) Broadcaster {
	if b == nil {
		return Nop{}
	}
	return b
}

// Multi broadcasts to every member and joins their errors.
type Multi []Broadcaster

func (m Multi) Broadcast(ctx context.Context, channel, eventType string, payload any) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Broadcast(ctx, channel, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encode(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return data, nil
	}
}
