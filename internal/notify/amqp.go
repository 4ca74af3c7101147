package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeTopic is the topic exchange chat notifications are routed through.
const ExchangeTopic = "chat.topic"

// Channel is the part of *amqp.Channel the sink uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
}

// AMQPSink publishes notifications to a topic exchange keyed by conversation.
type AMQPSink struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
}

// NewAMQPSink declares the exchange and returns a sink publishing to it.
func NewAMQPSink(ch Channel, exchange string) (*AMQPSink, error) {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	return &AMQPSink{ch: ch, exchange: exchange}, nil
}

// Send publishes a persistent JSON message routed by n.Topic().
func (s *AMQPSink) Send(ctx context.Context, n Notification) error {
	body, err := encode(n)
	if err != nil {
		return err
	}

	// One channel is shared by every dispatch goroutine.
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ch.PublishWithContext(ctx,
		s.exchange, // exchange
		n.Topic(),  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.Key,
			Type:         n.Kind,
			Timestamp:    n.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", n.Kind, s.exchange, err)
	}

	return nil
}

// DialAMQP connects to the broker, retrying until maxWait elapses.
func DialAMQP(ctx context.Context, url string, maxWait time.Duration) (*amqp.Connection, error) {
	dial := func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("rabbitmq not ready", slog.String("error", err.Error()), slog.Duration("retry_in", next))
	}

	conn, err := backoff.Retry(ctx, dial,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	return conn, nil
}
