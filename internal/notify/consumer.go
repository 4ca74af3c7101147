package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

var errMissingPayload = errors.New("missing payload in stream entry")

const (
	defaultBlock      = time.Second
	defaultCount      = 10
	defaultRetryDelay = time.Second
)

// Handler receives decoded notifications. An error leaves the entry pending in the group.
type Handler func(ctx context.Context, n Notification) error

// StreamConsumer reads notifications from a Redis stream through a consumer group.
type StreamConsumer struct {
	client     rueidis.Client
	stream     string
	group      string
	consumer   string
	handler    Handler
	logger     *slog.Logger
	block      time.Duration
	count      int64
	retryDelay time.Duration
}

// ConsumerOption configures a StreamConsumer.
type ConsumerOption func(*StreamConsumer)

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *StreamConsumer) {
		c.logger = logger
	}
}

// WithBlock sets how long one XREADGROUP waits for new entries.
func WithBlock(d time.Duration) ConsumerOption {
	return func(c *StreamConsumer) {
		c.block = d
	}
}

// NewStreamConsumer creates a consumer named consumer in group.
func NewStreamConsumer(
	client rueidis.Client, stream, group, consumer string, handler Handler, opts ...ConsumerOption,
) *StreamConsumer {
	c := &StreamConsumer{
		client:     client,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		handler:    handler,
		logger:     slog.Default(),
		block:      defaultBlock,
		count:      defaultCount,
		retryDelay: defaultRetryDelay,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// EnsureGroup creates the stream and the group. An existing group is fine.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	cmd := c.client.B().XgroupCreate().Key(c.stream).Group(c.group).Id("0").Mkstream().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}

		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}

	return nil
}

// Run consumes until ctx is canceled.
func (c *StreamConsumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped")
			return nil
		default:
			if _, err := c.ConsumeOnce(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("error consuming messages", slog.String("error", err.Error()))

				select {
				case <-ctx.Done():
				case <-time.After(c.retryDelay):
				}
			}
		}
	}
}

// ConsumeOnce reads one round of new entries and returns how many were acknowledged.
func (c *StreamConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	streams, err := c.read(ctx)
	if err != nil {
		return 0, err
	}

	acked := 0

	for _, entries := range streams {
		for _, entry := range entries {
			if c.process(ctx, entry) {
				acked++
			}
		}
	}

	return acked, nil
}

func (c *StreamConsumer) read(ctx context.Context) (map[string][]rueidis.XRangeEntry, error) {
	cmd := c.client.B().Xreadgroup().Group(c.group, c.consumer).
		Count(c.count).
		Block(c.block.Milliseconds()).
		Streams().
		Key(c.stream).
		Id(">").
		Build()

	result := c.client.Do(ctx, cmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, err
	}

	return result.AsXRead()
}

// process handles one entry and reports whether it was acknowledged.
func (c *StreamConsumer) process(ctx context.Context, entry rueidis.XRangeEntry) bool {
	n, err := decodeEntry(entry)
	if err != nil {
		// Malformed entries are acknowledged and dropped.
		c.logger.Error("dropping undecodable notification",
			slog.String("message_id", entry.ID),
			slog.String("error", err.Error()),
		)

		return c.ack(ctx, entry.ID)
	}

	if err := c.handler(ctx, n); err != nil {
		c.logger.Error("failed to process notification",
			slog.String("message_id", entry.ID),
			slog.String("kind", n.Kind),
			slog.String("error", err.Error()),
		)

		return false
	}

	return c.ack(ctx, entry.ID)
}

func (c *StreamConsumer) ack(ctx context.Context, id string) bool {
	cmd := c.client.B().Xack().Key(c.stream).Group(c.group).Id(id).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Error("failed to ACK message",
			slog.String("message_id", id),
			slog.String("error", err.Error()),
		)

		return false
	}

	c.logger.Debug("ACKed message", slog.String("message_id", id))

	return true
}

func decodeEntry(entry rueidis.XRangeEntry) (Notification, error) {
	payload, ok := entry.FieldValues[fieldPayload]
	if !ok {
		return Notification{}, errMissingPayload
	}

	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, fmt.Errorf("failed to parse notification payload: %w", err)
	}

	if n.Kind == "" {
		return Notification{}, errors.New("notification has no kind")
	}

	return n, nil
}
