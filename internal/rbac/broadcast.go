package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultBroadcastChannel is the pub/sub channel change events travel on.
const DefaultBroadcastChannel = "rolegate:changes"

// RedisBroadcaster shares change events between service instances so each
// instance can invalidate its local view cache.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	origin  string
	local   Notifier

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRedisBroadcaster creates a broadcaster publishing on channel. Events
// received from other instances are delivered to local.
func NewRedisBroadcaster(client *redis.Client, channel string, local Notifier) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultBroadcastChannel
	}
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		ready:   make(chan struct{}),
	}
}

// Origin returns the id this instance stamps on published events.
func (b *RedisBroadcaster) Origin() string {
	return b.origin
}

// Notify publishes event. Publish failures are logged; the mutation that
// produced the event has already succeeded.
func (b *RedisBroadcaster) Notify(ctx context.Context, event ChangeEvent) {
	if event.Origin == "" {
		event.Origin = b.origin
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("encoding change event", "error", err, "kind", event.Kind)
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		slog.Warn("publishing change event failed", "error", err, "kind", event.Kind)
	}
}

// Ready is closed once Run's subscription is confirmed.
func (b *RedisBroadcaster) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes to the channel and forwards events from other instances to
// the local notifier until ctx is cancelled.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	slog.Info("change broadcast subscribed", "channel", b.channel, "origin", b.origin)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("discarding malformed change event", "error", err)
				continue
			}
			if event.Origin == b.origin {
				continue
			}
			if b.local != nil {
				b.local.Notify(ctx, event)
			}
		}
	}
}
