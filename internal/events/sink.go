package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink forwards events to the real-time fan-out layer.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// RedisSink publishes events on Redis pub/sub channels named
// "{prefix}:{eventType}".
type RedisSink struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisSink builds a sink; timeout bounds each publish.
func NewRedisSink(client *redis.Client, prefix string, timeout time.Duration) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, timeout: timeout}
}

// Channel returns the channel an event type is published on.
func (s *RedisSink) Channel(eventType EventType) string {
	return fmt.Sprintf("%s:%s", s.prefix, eventType)
}

// Publish serialises the event and sends it.
func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis sink not configured")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.client.Publish(ctx, s.Channel(event.Type), body).Err()
}
