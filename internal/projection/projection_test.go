package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/chat-backend/internal/event"
	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/projection"
	"github.com/jnst/chat-backend/internal/readstore"
)

var base = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func at(sec int) model.EventMeta {
	return model.EventMeta{Occurred: base.Add(time.Duration(sec) * time.Second)}
}

type fixture struct {
	store *readstore.MemoryStore
	pub   *event.Publisher

	conv, msg, alice, bob, carol uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: readstore.NewMemoryStore(),
		pub:   event.NewPublisher(),
		conv:  uuid.New(),
		msg:   uuid.New(),
		alice: uuid.New(),
		bob:   uuid.New(),
		carol: uuid.New(),
	}
	projection.Register(f.pub, f.store)

	return f
}

func (f *fixture) publish(t *testing.T, events ...model.DomainEvent) {
	t.Helper()

	for _, evt := range events {
		require.NoError(t, f.pub.Publish(context.Background(), evt))
	}
}

func (f *fixture) summary(t *testing.T) (projection.ConversationSummary, bool) {
	t.Helper()

	var out projection.ConversationSummary
	found, err := f.store.Find(context.Background(), projection.ConversationSummaries, f.conv.String(), &out)
	require.NoError(t, err)

	return out, found
}

func (f *fixture) status(t *testing.T) (projection.MessageStatusView, bool) {
	t.Helper()

	var out projection.MessageStatusView
	found, err := f.store.Find(context.Background(), projection.MessageStatuses, f.msg.String(), &out)
	require.NoError(t, err)

	return out, found
}

func (f *fixture) created() model.ConversationCreated {
	return model.ConversationCreated{
		EventMeta:      at(0),
		ConversationID: f.conv,
		Title:          "general",
		CreatorID:      f.alice,
		ParticipantIDs: []uuid.UUID{f.alice, f.bob},
	}
}

func (f *fixture) sent() model.MessageSent {
	return model.MessageSent{
		EventMeta:      at(10),
		MessageID:      f.msg,
		ConversationID: f.conv,
		SenderID:       f.alice,
		Body:           "hello",
	}
}

func (f *fixture) delivered(sec int, to uuid.UUID) model.MessageDelivered {
	return model.MessageDelivered{EventMeta: at(sec), MessageID: f.msg, ConversationID: f.conv, RecipientID: to}
}

func (f *fixture) read(sec int, by uuid.UUID) model.MessageRead {
	return model.MessageRead{EventMeta: at(sec), MessageID: f.msg, ConversationID: f.conv, ReaderID: by}
}

func TestProjection_ConversationLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t,
		f.created(),
		model.ParticipantAdded{EventMeta: at(1), ConversationID: f.conv, UserID: f.carol, AddedBy: f.alice},
		model.ParticipantRemoved{EventMeta: at(2), ConversationID: f.conv, UserID: f.bob, RemovedBy: f.bob},
		model.ConversationRenamed{EventMeta: at(3), ConversationID: f.conv, Title: "team", RenamedBy: f.alice},
		f.sent(),
	)

	s, found := f.summary(t)
	require.True(t, found)
	assert.Equal(t, "team", s.Title)
	assert.Equal(t, base, s.CreatedAt)
	assert.Equal(t, f.alice.String(), s.CreatorID)
	assert.Equal(t, []string{f.alice.String(), f.carol.String()}, s.ParticipantIDs)
	assert.Equal(t, f.msg.String(), s.LastMessageID)
	assert.Equal(t, "hello", s.LastMessagePreview)
	assert.Equal(t, base.Add(10*time.Second), s.LastTouched)
}

func TestProjection_DuplicateDeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	events := func(f *fixture) []model.DomainEvent {
		return []model.DomainEvent{
			f.created(),
			model.ParticipantAdded{EventMeta: at(1), ConversationID: f.conv, UserID: f.carol, AddedBy: f.alice},
			model.ConversationRenamed{EventMeta: at(2), ConversationID: f.conv, Title: "team", RenamedBy: f.alice},
			f.sent(),
			model.MessageEdited{EventMeta: at(11), MessageID: f.msg, ConversationID: f.conv, Body: "hello!"},
			f.delivered(12, f.bob),
			f.read(13, f.bob),
			model.ParticipantRemoved{EventMeta: at(14), ConversationID: f.conv, UserID: f.carol, RemovedBy: f.alice},
		}
	}

	once := newFixture(t)
	for _, evt := range events(once) {
		once.publish(t, evt)
	}

	twice := newFixture(t)
	twice.conv, twice.msg, twice.alice, twice.bob, twice.carol = once.conv, once.msg, once.alice, once.bob, once.carol
	for _, evt := range events(twice) {
		twice.publish(t, evt, evt)
	}

	for _, c := range []struct{ coll, id string }{
		{projection.ConversationSummaries, once.conv.String()},
		{projection.MessageStatuses, once.msg.String()},
	} {
		a, ok := once.store.Snapshot(c.coll, c.id)
		require.True(t, ok)
		b, ok := twice.store.Snapshot(c.coll, c.id)
		require.True(t, ok)
		assert.Equal(t, a, b, c.coll)
	}
}

func TestProjection_DeliveryIsMonotonic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t, f.sent(), f.delivered(30, f.bob), f.delivered(20, f.bob))

	st, found := f.status(t)
	require.True(t, found)
	assert.Equal(t, projection.StatusDelivered, st.Status)
	assert.Equal(t, base.Add(30*time.Second), st.DeliveredAt)

	f.publish(t, f.read(40, f.bob), f.delivered(50, f.carol))

	st, _ = f.status(t)
	assert.Equal(t, projection.StatusRead, st.Status)
	assert.Equal(t, []string{f.bob.String(), f.carol.String()}, st.DeliveredTo)
	assert.Equal(t, []string{f.bob.String()}, st.ReadBy)
}

func TestProjection_ReceiptsBeforeSentConverge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t, f.read(40, f.bob), f.delivered(30, f.bob), f.sent())

	st, found := f.status(t)
	require.True(t, found)
	assert.Equal(t, projection.StatusRead, st.Status)
	assert.Equal(t, f.alice.String(), st.SenderID)
	assert.Equal(t, f.conv.String(), st.ConversationID)
	assert.Equal(t, base.Add(10*time.Second), st.SentAt)
	assert.Equal(t, base.Add(40*time.Second), st.LastTouched)
}

func TestProjection_MissingTargetTolerance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Non-creation events for an unknown conversation are dropped.
	f.publish(t,
		model.ConversationRenamed{EventMeta: at(1), ConversationID: f.conv, Title: "x", RenamedBy: f.alice},
		model.ParticipantAdded{EventMeta: at(1), ConversationID: f.conv, UserID: f.bob, AddedBy: f.alice},
		model.ParticipantRemoved{EventMeta: at(1), ConversationID: f.conv, UserID: f.bob, RemovedBy: f.alice},
		model.MessageEdited{EventMeta: at(1), MessageID: f.msg, ConversationID: f.conv, Body: "x"},
	)

	_, found := f.summary(t)
	assert.False(t, found)
	_, found = f.status(t)
	assert.False(t, found)

	// Creation events create.
	f.publish(t, f.created(), f.sent())

	_, found = f.summary(t)
	assert.True(t, found)
	st, found := f.status(t)
	require.True(t, found)
	assert.Equal(t, projection.StatusSent, st.Status)
}

func TestProjection_StaleRenameAndOlderMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	older := uuid.New()

	f.publish(t,
		f.created(),
		model.ConversationRenamed{EventMeta: at(5), ConversationID: f.conv, Title: "new", RenamedBy: f.alice},
		model.ConversationRenamed{EventMeta: at(4), ConversationID: f.conv, Title: "old", RenamedBy: f.alice},
		f.sent(),
		model.MessageSent{EventMeta: at(9), MessageID: older, ConversationID: f.conv, SenderID: f.bob, Body: "earlier"},
	)

	s, _ := f.summary(t)
	assert.Equal(t, "new", s.Title)
	assert.Equal(t, f.msg.String(), s.LastMessageID)
	assert.Equal(t, "hello", s.LastMessagePreview)
}

func TestProjection_EditAndDeleteOnlyTouchLatestMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	older := uuid.New()

	f.publish(t,
		f.created(),
		model.MessageSent{EventMeta: at(5), MessageID: older, ConversationID: f.conv, SenderID: f.bob, Body: "first"},
		f.sent(),
		model.MessageEdited{EventMeta: at(20), MessageID: older, ConversationID: f.conv, Body: "edited first"},
	)

	s, _ := f.summary(t)
	assert.Equal(t, "hello", s.LastMessagePreview)

	f.publish(t,
		model.MessageEdited{EventMeta: at(21), MessageID: f.msg, ConversationID: f.conv, Body: "hello again"},
	)
	s, _ = f.summary(t)
	assert.Equal(t, "hello again", s.LastMessagePreview)

	f.publish(t, model.MessageDeleted{EventMeta: at(22), MessageID: f.msg, ConversationID: f.conv})

	s, _ = f.summary(t)
	assert.True(t, s.LastMessageDeleted)
	assert.Empty(t, s.LastMessagePreview)

	st, found := f.status(t)
	require.True(t, found)
	assert.Equal(t, projection.StatusDeleted, st.Status)
	assert.Equal(t, base.Add(22*time.Second), st.DeletedAt)
}

func TestProjection_RedeliveryAfterDeleteDoesNotRevive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t,
		f.created(),
		f.sent(),
		f.delivered(20, f.bob),
		model.MessageDeleted{EventMeta: at(40), MessageID: f.msg, ConversationID: f.conv},
	)

	// A record whose outcome was never marked comes back on a later poll.
	f.publish(t,
		f.sent(),
		f.delivered(20, f.bob),
		f.read(30, f.bob),
		model.MessageEdited{EventMeta: at(15), MessageID: f.msg, ConversationID: f.conv, Body: "edited"},
	)

	st, found := f.status(t)
	require.True(t, found)
	assert.Equal(t, projection.StatusDeleted, st.Status)
	assert.Empty(t, st.ReadBy)
	assert.True(t, st.EditedAt.IsZero())
	assert.Equal(t, base.Add(40*time.Second), st.LastTouched)

	s, _ := f.summary(t)
	assert.Equal(t, f.msg.String(), s.LastMessageID)
	assert.True(t, s.LastMessageDeleted)
	assert.Empty(t, s.LastMessagePreview)
}

func TestProjection_DeleteBeforeSentLeavesTombstone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t,
		model.MessageDeleted{EventMeta: at(40), MessageID: f.msg, ConversationID: f.conv},
		f.sent(),
		f.delivered(20, f.bob),
	)

	st, found := f.status(t)
	require.True(t, found)
	assert.Equal(t, projection.StatusDeleted, st.Status)
	assert.Empty(t, st.SenderID)
	assert.Empty(t, st.DeliveredTo)
}

func TestProjection_StaleEditKeepsNewerPreview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t,
		f.created(),
		f.sent(),
		model.MessageEdited{EventMeta: at(30), MessageID: f.msg, ConversationID: f.conv, Body: "second edit"},
		model.MessageEdited{EventMeta: at(20), MessageID: f.msg, ConversationID: f.conv, Body: "first edit"},
	)

	s, _ := f.summary(t)
	assert.Equal(t, "second edit", s.LastMessagePreview)
	assert.Equal(t, base.Add(30*time.Second), s.LastMessageEditedAt)

	// A redelivered MessageSent must not roll the edit back either.
	f.publish(t, f.sent())

	s, _ = f.summary(t)
	assert.Equal(t, "second edit", s.LastMessagePreview)

	// The next message starts its own edit clock.
	next := uuid.New()
	f.publish(t,
		model.MessageSent{EventMeta: at(25), MessageID: next, ConversationID: f.conv, SenderID: f.bob, Body: "later"},
		model.MessageEdited{EventMeta: at(26), MessageID: next, ConversationID: f.conv, Body: "later, edited"},
	)

	s, _ = f.summary(t)
	assert.Equal(t, next.String(), s.LastMessageID)
	assert.Equal(t, "later, edited", s.LastMessagePreview)
}

func TestProjection_RedeliveredCreationKeepsMembership(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t,
		f.created(),
		model.ParticipantRemoved{EventMeta: at(5), ConversationID: f.conv, UserID: f.bob, RemovedBy: f.bob},
		f.created(),
	)

	s, found := f.summary(t)
	require.True(t, found)
	assert.Equal(t, []string{f.alice.String()}, s.ParticipantIDs)
	assert.Equal(t, base.Add(5*time.Second), s.LastTouched)
}
