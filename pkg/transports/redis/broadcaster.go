// Package redis broadcasts wash cycle events over Redis.
//
// Every event is published as JSON on a pub/sub channel. Terminal cycle
// events also update a small summary kept under the key prefix:
//
//	<prefix>last     JSON of the most recent cycle.completed or cycle.failed event
//	<prefix>status   hash of terminal status -> count
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/openfroyo/dishwasher/pkg/telemetry"
)

// Broadcaster publishes telemetry events to Redis.
type Broadcaster struct {
	client  *backend.Client
	channel string
	prefix  string
	timeout time.Duration
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) Option {
	return func(b *Broadcaster) {
		b.channel = channel
	}
}

// WithPrefix sets the key prefix for the cycle summary.
func WithPrefix(prefix string) Option {
	return func(b *Broadcaster) {
		b.prefix = prefix
	}
}

// WithTimeout bounds each publish issued from a subscriber.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Broadcaster) {
		b.timeout = timeout
	}
}

// New creates a broadcaster connected to address.
func New(address, password string, db int, opts ...Option) *Broadcaster {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a broadcaster from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		client:  client,
		channel: "dishwasher:events",
		prefix:  "dishwasher:cycle:",
		timeout: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Channel returns the pub/sub channel events are published on.
func (b *Broadcaster) Channel() string {
	return b.channel
}

// Ping checks the connection.
func (b *Broadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (b *Broadcaster) Close() error {
	return b.client.Close()
}

// Publish sends the event and, for terminal cycle events, updates the summary.
func (b *Broadcaster) Publish(ctx context.Context, event telemetry.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Publish(ctx, b.channel, data)

	if event.Type == telemetry.EventTypeCycleCompleted || event.Type == telemetry.EventTypeCycleFailed {
		pipe.Set(ctx, b.prefix+"last", data, 0)
		if status, ok := event.Data["status"].(string); ok && status != "" {
			pipe.HIncrBy(ctx, b.prefix+"status", status, 1)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscriber adapts the broadcaster to an EventPublisher subscriber.
// Failures are logged through logger and never reach the publisher.
func (b *Broadcaster) Subscriber(logger *telemetry.Logger) telemetry.EventSubscriber {
	return func(event telemetry.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		if err := b.Publish(ctx, event); err != nil {
			logger.WithError(err).WithField("event_type", event.Type).Warn("Failed to broadcast event")
		}
	}
}

// LastCycle returns the most recent terminal cycle event, or nil if none was published.
func (b *Broadcaster) LastCycle(ctx context.Context) (*telemetry.Event, error) {
	data, err := b.client.Get(ctx, b.prefix+"last").Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last cycle: %w", err)
	}

	var event telemetry.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode last cycle: %w", err)
	}
	return &event, nil
}

// StatusCounts returns how many terminal cycle events were seen per status.
func (b *Broadcaster) StatusCounts(ctx context.Context) (map[string]int64, error) {
	raw, err := b.client.HGetAll(ctx, b.prefix+"status").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status counts: %w", err)
	}

	counts := make(map[string]int64, len(raw))
	for status, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			return nil, fmt.Errorf("invalid count for status %s: %w", status, err)
		}
		counts[status] = n
	}
	return counts, nil
}
