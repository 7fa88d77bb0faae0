package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends tracked events to a Redis stream so downstream
// analytics consumers can read them with XREAD/XREADGROUP.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink writing to stream. maxLen > 0 caps the
// stream length approximately.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if client == nil {
		panic("tracking: NewRedisStreamSink requires non-nil client")
	}
	if stream == "" {
		stream = "paygate:events"
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Track implements Sink.
func (s *RedisStreamSink) Track(ctx context.Context, event TrackedEvent) error {
	eventParams, err := json.Marshal(event.Params.EventParams)
	if err != nil {
		return fmt.Errorf("redis sink: encode event params: %w", err)
	}
	delegateParams, err := json.Marshal(event.Params.DelegateParams)
	if err != nil {
		return fmt.Errorf("redis sink: encode delegate params: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":              event.ID,
			"name":            event.Name,
			"created_at_ns":   strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
			"event_params":    string(eventParams),
			"delegate_params": string(delegateParams),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis sink: xadd %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the target stream key.
func (s *RedisStreamSink) Stream() string {
	return s.stream
}
