package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/event"
	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type txKey struct{}

// staged holds the writes of one open transaction.
type staged struct {
	convs  []*model.Conversation
	msgs   []*model.Message
	outbox []*model.EventEnvelope
	unlock []func()
}

func (tx *staged) release() {
	for _, unlock := range tx.unlock {
		unlock()
	}
}

// memDB is a transactional in-memory write store.
type memDB struct {
	mu     sync.Mutex
	convs  map[uuid.UUID]*model.Conversation
	msgs   map[uuid.UUID]*model.Message
	outbox []*model.EventEnvelope
	rows   map[uuid.UUID]*sync.Mutex

	saveErr   error
	appendErr error
}

func newMemDB() *memDB {
	return &memDB{
		convs: map[uuid.UUID]*model.Conversation{},
		msgs:  map[uuid.UUID]*model.Message{},
		rows:  map[uuid.UUID]*sync.Mutex{},
	}
}

func (db *memDB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*staged); ok {
		return fn(ctx)
	}

	tx := &staged{}
	defer tx.release()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, c := range tx.convs {
		db.convs[c.ID] = c
	}

	for _, m := range tx.msgs {
		db.msgs[m.ID] = m
	}

	db.outbox = append(db.outbox, tx.outbox...)

	return nil
}

// lockRow holds the row lock for id until the transaction in ctx ends, like SELECT ... FOR UPDATE.
func (db *memDB) lockRow(ctx context.Context, id uuid.UUID) error {
	tx, ok := ctx.Value(txKey{}).(*staged)
	if !ok {
		return repository.ErrTransactionRequired
	}

	db.mu.Lock()
	row, ok := db.rows[id]
	if !ok {
		row = &sync.Mutex{}
		db.rows[id] = row
	}
	db.mu.Unlock()

	row.Lock()
	tx.unlock = append(tx.unlock, row.Unlock)

	return nil
}

func (db *memDB) conversation(id uuid.UUID) *model.Conversation {
	db.mu.Lock()
	defer db.mu.Unlock()

	return cloneConversation(db.convs[id])
}

func (db *memDB) envelopes() []*model.EventEnvelope {
	db.mu.Lock()
	defer db.mu.Unlock()

	return slices.Clone(db.outbox)
}

type fakeConversationRepo struct{ db *memDB }

func (r fakeConversationRepo) Save(ctx context.Context, conv *model.Conversation) error {
	if r.db.saveErr != nil {
		return r.db.saveErr
	}

	c := cloneConversation(conv)
	if tx, ok := ctx.Value(txKey{}).(*staged); ok {
		tx.convs = append(tx.convs, c)

		return nil
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.convs[c.ID] = c

	return nil
}

func (r fakeConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.convs[id]
	if !ok {
		return nil, model.ErrConversationNotFound
	}

	return cloneConversation(c), nil
}

func (r fakeConversationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	if err := r.db.lockRow(ctx, id); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

type fakeMessageRepo struct{ db *memDB }

func (r fakeMessageRepo) Save(ctx context.Context, msg *model.Message) error {
	if r.db.saveErr != nil {
		return r.db.saveErr
	}

	m := cloneMessage(msg)
	if tx, ok := ctx.Value(txKey{}).(*staged); ok {
		tx.msgs = append(tx.msgs, m)

		return nil
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.msgs[m.ID] = m

	return nil
}

func (r fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.msgs[id]
	if !ok {
		return nil, model.ErrMessageNotFound
	}

	return cloneMessage(m), nil
}

func (r fakeMessageRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	if err := r.db.lockRow(ctx, id); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// fakeOutboxAppender only implements Append. The processor tests use fakeOutboxRepo.
type fakeOutboxAppender struct {
	repository.OutboxRepository
	db *memDB
}

func (r fakeOutboxAppender) Append(ctx context.Context, env *model.EventEnvelope) error {
	tx, ok := ctx.Value(txKey{}).(*staged)
	if !ok {
		return repository.ErrTransactionRequired
	}

	if r.db.appendErr != nil {
		return r.db.appendErr
	}

	tx.outbox = append(tx.outbox, env)

	return nil
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := &model.Conversation{
		ID:             c.ID,
		Title:          c.Title,
		CreatorID:      c.CreatorID,
		ParticipantIDs: slices.Clone(c.ParticipantIDs),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}

	return out
}

func cloneMessage(m *model.Message) *model.Message {
	out := &model.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		SentAt:         m.SentAt,
		EditedAt:       m.EditedAt,
		DeletedAt:      m.DeletedAt,
		Receipts:       make(map[uuid.UUID]*model.Receipt, len(m.Receipts)),
	}

	for k, r := range m.Receipts {
		rc := *r
		out.Receipts[k] = &rc
	}

	return out
}

// fakeOutboxRepo is an in-memory outbox used by the processor tests.
type fakeOutboxRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*model.OutboxRecord
	takes   int

	// takeHook overrides TakeBatch when set. call counts from 1.
	takeHook func(call int) ([]*model.OutboxRecord, error)
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{records: map[int64]*model.OutboxRecord{}}
}

func (r *fakeOutboxRepo) Append(_ context.Context, env *model.EventEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.records[r.nextID] = &model.OutboxRecord{
		ID:         r.nextID,
		OccurredAt: env.OccurredAt,
		Name:       env.Name,
		Type:       env.Type,
		Payload:    env.Payload,
	}

	return nil
}

func (r *fakeOutboxRepo) add(t *testing.T, evt model.DomainEvent) int64 {
	t.Helper()

	env, err := event.NewEnvelope(evt)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	_ = r.Append(context.Background(), env)

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.nextID
}

func (r *fakeOutboxRepo) addRaw(name, typeID, payload string) int64 {
	_ = r.Append(context.Background(), &model.EventEnvelope{
		Name: name, Type: typeID, Payload: payload, OccurredAt: time.Now(),
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.nextID
}

func (r *fakeOutboxRepo) TakeBatch(_ context.Context, limit int) ([]*model.OutboxRecord, error) {
	r.mu.Lock()
	r.takes++
	call := r.takes
	hook := r.takeHook
	r.mu.Unlock()

	if hook != nil {
		return hook(call)
	}

	return r.takePending(limit), nil
}

func (r *fakeOutboxRepo) takePending(limit int) []*model.OutboxRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.OutboxRecord

	for _, id := range slices.Sorted(maps.Keys(r.records)) {
		rec := r.records[id]
		if !rec.IsPending() {
			continue
		}

		cp := *rec
		out = append(out, &cp)

		if len(out) == limit {
			break
		}
	}

	return out
}

func (r *fakeOutboxRepo) MarkProcessed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return errors.New("no such record")
	}

	if rec.ProcessedAt == nil {
		now := time.Now()
		rec.ProcessedAt = &now
	}

	return nil
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.records[id]
	rec.Attempts++
	rec.LastError = &reason

	return nil
}

func (r *fakeOutboxRepo) MarkDead(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.records[id]
	now := time.Now()
	rec.Attempts++
	rec.LastError = &reason
	rec.DeadAt = &now

	return nil
}

func (r *fakeOutboxRepo) PendingCount(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64

	for _, rec := range r.records {
		if rec.IsPending() {
			n++
		}
	}

	return n, nil
}

func (r *fakeOutboxRepo) get(id int64) model.OutboxRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return *r.records[id]
}

func (r *fakeOutboxRepo) takeCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.takes
}
