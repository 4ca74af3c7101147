// Package notify fans message events out to realtime delivery channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/event"
	"github.com/jnst/chat-backend/internal/model"
)

// Notification is what a push gateway needs to wake up clients of a conversation.
type Notification struct {
	// Key identifies the underlying event so consumers can drop redeliveries.
	Key            string    `json:"key"`
	Kind           string    `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	Preview        string    `json:"preview,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Topic is the routing key of the conversation the notification belongs to.
func (n Notification) Topic() string {
	return "conversation." + n.ConversationID.String()
}

// Sink delivers a notification to an external channel.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

const previewLength = 80

func newNotification(kind string, msgID, convID, actor uuid.UUID, at time.Time) Notification {
	return Notification{
		Key:            fmt.Sprintf("%s:%s:%s", kind, msgID, actor),
		Kind:           kind,
		ConversationID: convID,
		MessageID:      msgID,
		ActorID:        actor,
		OccurredAt:     at,
	}
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewLength {
		return body
	}

	return string(r[:previewLength])
}

// Register subscribes the sink to the message events clients are notified about.
func Register(pub *event.Publisher, sink Sink) {
	event.Subscribe(pub, "notify.message_sent", func(ctx context.Context, e model.MessageSent) error {
		n := newNotification(e.EventName(), e.MessageID, e.ConversationID, e.SenderID, e.OccurredAt())
		n.Preview = preview(e.Body)

		return sink.Send(ctx, n)
	})
	event.Subscribe(pub, "notify.message_delivered", func(ctx context.Context, e model.MessageDelivered) error {
		return sink.Send(ctx, newNotification(e.EventName(), e.MessageID, e.ConversationID, e.RecipientID, e.OccurredAt()))
	})
	event.Subscribe(pub, "notify.message_read", func(ctx context.Context, e model.MessageRead) error {
		return sink.Send(ctx, newNotification(e.EventName(), e.MessageID, e.ConversationID, e.ReaderID, e.OccurredAt()))
	})
}

func encode(n Notification) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification %s: %w", n.Key, err)
	}

	return b, nil
}
