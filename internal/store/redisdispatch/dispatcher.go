// Package redisdispatch delivers real-time notifications over Redis pub/sub.
package redisdispatch

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/drblury/activityflow/internal/store"
)

// Publisher is the subset of *redis.Client used by Dispatcher.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Dispatcher publishes payloads to Redis channels, throttled by a token
// bucket so a replay burst does not flood subscribers.
type Dispatcher struct {
	client  Publisher
	limiter *rate.Limiter
}

// New returns a Dispatcher. A non-positive ratePerSecond disables throttling.
func New(client Publisher, ratePerSecond float64, burst int) *Dispatcher {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{client: client, limiter: rate.NewLimiter(limit, burst)}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisdispatch: ping %s: %w", addr, err)
	}
	return client, nil
}

// Dispatch waits for a rate-limit token, then publishes. Having no
// subscribers is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, channel string, payload []byte) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("redisdispatch: throttled dispatch to %s: %w", channel, err)
	}
	if err := d.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redisdispatch: publish to %s: %w", channel, err)
	}
	return nil
}

var _ store.Dispatcher = (*Dispatcher)(nil)
