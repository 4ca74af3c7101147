// Package projection folds domain events into denormalized read models.
//
// Handlers are stateless and idempotent: every write goes through SyncPort as a
// guarded upsert or delete, so redelivering an event never changes the outcome.
package projection

import "context"

// Op is a guard operator.
type Op int

const (
	// OpEq matches when the field equals Value.
	OpEq Op = iota + 1
	// OpNotIn matches when the field is absent or not one of Values.
	OpNotIn
	// OpAbsentOrAtMost matches when the field is absent, null, or <= Value.
	OpAbsentOrAtMost
)

// Cond is one guard of a Match.
type Cond struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Eq builds an equality guard.
func Eq(field string, v any) Cond {
	return Cond{Field: field, Op: OpEq, Value: v}
}

// NotIn builds an exclusion guard.
func NotIn(field string, vs ...any) Cond {
	return Cond{Field: field, Op: OpNotIn, Values: vs}
}

// AbsentOrAtMost builds a monotonic guard: the write proceeds only if it does not move field backwards.
func AbsentOrAtMost(field string, v any) Cond {
	return Cond{Field: field, Op: OpAbsentOrAtMost, Value: v}
}

// Match selects one document by id, optionally narrowed by guards.
type Match struct {
	ID     string
	Guards []Cond
}

// Mutation describes a document write.
//
// SetOnInsert fields are written only when the document is created. Max keeps the
// greater of the stored and given value. AddToSet and Pull treat the field as a set.
// With Upsert false a missing document is left missing.
type Mutation struct {
	Set         map[string]any
	SetOnInsert map[string]any
	Max         map[string]any
	AddToSet    map[string][]any
	Pull        map[string][]any
	Upsert      bool
}

// IsEmpty reports whether the mutation writes nothing.
func (m Mutation) IsEmpty() bool {
	return len(m.Set) == 0 && len(m.SetOnInsert) == 0 && len(m.Max) == 0 &&
		len(m.AddToSet) == 0 && len(m.Pull) == 0
}

// SyncPort is the only way handlers touch the read store.
//
// Upsert applies mut to the document selected by m. When a guard rejects an
// existing document, or the document is missing and mut.Upsert is false, the call
// is a no-op and returns nil. Delete removes the selected document if it matches.
type SyncPort interface {
	Upsert(ctx context.Context, collection string, m Match, mut Mutation) error
	Delete(ctx context.Context, collection string, m Match) error
}

// Finder loads a read model by id. It reports false when the document does not exist.
type Finder interface {
	Find(ctx context.Context, collection, id string, out any) (bool, error)
}
