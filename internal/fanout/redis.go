// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camfleet/internal/log"
	"github.com/ManuGH/camfleet/internal/metrics"
)

const (
	// DefaultChannelPrefix namespaces camfleet channels on a shared Redis.
	DefaultChannelPrefix = "camfleet:"
	publishTimeout       = 5 * time.Second
)

// envelope is the message published to Redis for cross-instance delivery.
type envelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     int64           `json:"at"`
	Origin string          `json:"origin"`
}

// Redis publishes broadcasts on Redis pub/sub so every daemon instance sees
// them. Relay feeds messages from other instances into a local Hub.
type Redis struct {
	client *redis.Client
	prefix string
	origin string
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedis creates a Redis broadcaster. An empty prefix uses DefaultChannelPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
		logger: log.WithComponent("fanout.redis"),
		now:    time.Now,
	}
}

// Broadcast implements Broadcaster.
func (r *Redis) Broadcast(ctx context.Context, channel, eventType string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		metrics.IncBroadcast("redis", "encode_error")
		return err
	}
	body, err := json.Marshal(envelope{Event: eventType, Data: data, At: r.now().UnixMilli(), Origin: r.origin})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.prefix+channel, body).Err(); err != nil {
		metrics.IncBroadcast("redis", "error")
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	metrics.IncBroadcast("redis", "ok")
	return nil
}

// Relay subscribes to every prefixed channel and delivers messages published
// by other instances into hub. It blocks until ctx is done.
func (r *Redis) Relay(ctx context.Context, hub *Hub) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.logger.Info().Str(log.FieldEvent, "fanout.relay_started").Str("pattern", r.prefix+"*").Msg("redis relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Debug().Err(err).Str(log.FieldEvent, "fanout.relay_decode_failed").Msg("skip malformed message")
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			hub.Deliver(Message{
				Channel: strings.TrimPrefix(msg.Channel, r.prefix),
				Event:   env.Event,
				Data:    env.Data,
				At:      env.At,
			})
		}
	}
}
