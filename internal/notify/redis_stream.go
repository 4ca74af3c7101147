package notify

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"
)

// Stream entry fields.
const (
	fieldKind    = "kind"
	fieldTopic   = "topic"
	fieldPayload = "payload"
)

// RedisStreamSink appends notifications to a Redis stream.
type RedisStreamSink struct {
	client rueidis.Client
	stream string
}

// NewRedisStreamSink creates a sink writing to stream.
func NewRedisStreamSink(client rueidis.Client, stream string) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream}
}

// Send appends one stream entry per notification.
func (s *RedisStreamSink) Send(ctx context.Context, n Notification) error {
	payload, err := encode(n)
	if err != nil {
		return err
	}

	cmd := s.client.B().Xadd().Key(s.stream).Id("*").
		FieldValue().FieldValue(fieldKind, n.Kind).
		FieldValue(fieldTopic, n.Topic()).
		FieldValue(fieldPayload, string(payload)).
		Build()

	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish %s to stream %s: %w", n.Kind, s.stream, err)
	}

	return nil
}
