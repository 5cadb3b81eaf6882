package observability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/daylogger/daylog/pkg/worklog"
)

// ChannelCompleted is the Redis pub/sub channel for completion events. One
// event is published per processed message, whatever the outcome.
const ChannelCompleted = "events.daylog.completed"

// EventSink publishes pipeline completion events.
type EventSink interface {
	Publish(ctx context.Context, event worklog.CompletionEvent) error
}

// RedisEventSink publishes completion events over Redis pub/sub.
type RedisEventSink struct {
	client *redis.Client
}

// NewRedisEventSink creates a Redis-backed event sink.
func NewRedisEventSink(client *redis.Client) *RedisEventSink {
	return &RedisEventSink{client: client}
}

// Publish serializes and publishes a completion event. Publishing is
// fire-and-forget for subscribers; a failed publish surfaces to the caller
// but must not fail the pipeline run it describes.
func (s *RedisEventSink) Publish(ctx context.Context, event worklog.CompletionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}
	if err := s.client.Publish(ctx, ChannelCompleted, data).Err(); err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}
	return nil
}

// NopEventSink discards events. Used in tests and one-shot CLI runs.
type NopEventSink struct{}

// Publish discards the event.
func (NopEventSink) Publish(context.Context, worklog.CompletionEvent) error { return nil }

// Verify interface compliance
var _ EventSink = (*RedisEventSink)(nil)
var _ EventSink = NopEventSink{}
