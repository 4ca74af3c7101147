package event

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jnst/chat-backend/internal/model"
)

type subscription struct {
	name string
	fn   func(ctx context.Context, evt model.DomainEvent) error
}

// Publisher dispatches an event to every handler subscribed to its exact type.
type Publisher struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]subscription
}

// NewPublisher creates a publisher without subscriptions.
func NewPublisher() *Publisher {
	return &Publisher{handlers: make(map[reflect.Type][]subscription)}
}

// Subscribe registers fn for events of type T. Handlers run in subscription order.
func Subscribe[T model.DomainEvent](p *Publisher, name string, fn func(ctx context.Context, evt T) error) {
	key := reflect.TypeFor[T]()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[key] = append(p.handlers[key], subscription{
		name: name,
		fn: func(ctx context.Context, evt model.DomainEvent) error {
			return fn(ctx, evt.(T))
		},
	})
}

// Publish runs the handlers for the event's concrete type one after another and
// stops at the first failure. An event without subscribers is a no-op.
func (p *Publisher) Publish(ctx context.Context, evt model.DomainEvent) error {
	p.mu.RLock()
	subs := p.handlers[reflect.TypeOf(evt)]
	p.mu.RUnlock()

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := sub.fn(ctx, evt); err != nil {
			return fmt.Errorf("handler %s failed on %s: %w", sub.name, evt.EventName(), err)
		}
	}

	return nil
}

// HandlerCount returns how many handlers are subscribed to T.
func HandlerCount[T model.DomainEvent](p *Publisher) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.handlers[reflect.TypeFor[T]()])
}
