// Package redisbus implements events.Sink on Redis Pub/Sub. Each event is
// marshalled to JSON and published on a single channel; subscribers (audit,
// notification workers) consume it out of process.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"collateral-auction/internal/events"
)

// DefaultChannel is the Pub/Sub channel events are published on when the
// config does not override it.
const DefaultChannel = "auction.events"

// Bus publishes domain events on a Redis Pub/Sub channel.
type Bus struct {
	rdb     *redis.Client
	channel string
}

// Options configures the Redis connection and channel.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// New connects to Redis and returns a Bus. The connection is verified with a
// PING so misconfiguration fails at startup, not on the first emit.
func New(ctx context.Context, opts Options) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisbus: ping %s: %w", opts.Addr, err)
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{rdb: rdb, channel: channel}, nil
}

// Emit publishes ev as JSON. Pub/Sub is fire-and-forget: if no subscriber is
// listening the event is dropped, which is acceptable for notification
// delivery (the store remains the system of record).
func (b *Bus) Emit(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redisbus: marshal %s event: %w", ev.Kind, err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redisbus: publish %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw event payloads published on the bus
// channel. The subscription closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redisbus: subscribe %s: %w", b.channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- []byte(msg.Payload)
			}
		}
	}()
	return out, nil
}

// Close releases the underlying Redis client.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
