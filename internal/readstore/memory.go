// Package readstore implements the projection sync port on MongoDB and in memory.
package readstore

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jnst/chat-backend/internal/projection"
)

// MemoryStore keeps read models in process with the same update semantics as MongoStore.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) collection(name string) map[string]map[string]any {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[name] = docs
	}

	return docs
}

// Upsert applies mut to the document selected by m.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, m projection.Match, mut projection.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if mut.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)

	doc, exists := docs[m.ID]
	if exists {
		if !matches(doc, m.Guards) {
			return nil
		}

		doc = cloneDoc(doc)
	} else {
		if !mut.Upsert {
			return nil
		}

		doc = map[string]any{"_id": m.ID}
		for _, g := range m.Guards {
			if g.Op == projection.OpEq {
				doc[g.Field] = g.Value
			}
		}

		maps.Copy(doc, mut.SetOnInsert)
	}

	if err := apply(doc, mut); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, m.ID, err)
	}

	docs[m.ID] = doc

	return nil
}

// Delete removes the selected document when its guards match.
func (s *MemoryStore) Delete(ctx context.Context, collection string, m projection.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	if doc, ok := docs[m.ID]; ok && matches(doc, m.Guards) {
		delete(docs, m.ID)
	}

	return nil
}

// Find decodes the document into out through bson, like the Mongo driver would.
func (s *MemoryStore) Find(ctx context.Context, collection, id string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	doc, ok := s.collections[collection][id]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}

	if err := bson.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}

	return true, nil
}

// Snapshot returns a copy of the raw document.
func (s *MemoryStore) Snapshot(collection, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, false
	}

	return cloneDoc(doc), true
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[collection])
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if arr, ok := v.([]any); ok {
			v = slices.Clone(arr)
		}
		out[k] = v
	}

	return out
}

func matches(doc map[string]any, guards []projection.Cond) bool {
	for _, g := range guards {
		cur, present := doc[g.Field]
		present = present && cur != nil

		switch g.Op {
		case projection.OpEq:
			if !present || !equal(cur, g.Value) {
				return false
			}
		case projection.OpNotIn:
			if present && slices.ContainsFunc(g.Values, func(v any) bool { return equal(cur, v) }) {
				return false
			}
		case projection.OpAbsentOrAtMost:
			if !present {
				continue
			}

			c, ok := compare(cur, g.Value)
			if !ok || c > 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func apply(doc map[string]any, mut projection.Mutation) error {
	maps.Copy(doc, mut.Set)

	for field, v := range mut.Max {
		cur, ok := doc[field]
		if !ok || cur == nil {
			doc[field] = v
			continue
		}

		c, ok := compare(cur, v)
		if !ok {
			return fmt.Errorf("cannot compare %T with %T in field %s", cur, v, field)
		}

		if c < 0 {
			doc[field] = v
		}
	}

	for field, vals := range mut.AddToSet {
		set, err := arrayField(doc, field)
		if err != nil {
			return err
		}

		for _, v := range vals {
			if !slices.ContainsFunc(set, func(x any) bool { return equal(x, v) }) {
				set = append(set, v)
			}
		}

		doc[field] = set
	}

	for field, vals := range mut.Pull {
		if _, ok := doc[field]; !ok {
			continue
		}

		set, err := arrayField(doc, field)
		if err != nil {
			return err
		}

		doc[field] = slices.DeleteFunc(set, func(x any) bool {
			return slices.ContainsFunc(vals, func(v any) bool { return equal(x, v) })
		})
	}

	return nil
}

func arrayField(doc map[string]any, field string) ([]any, error) {
	switch v := doc[field].(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("field %s is %T, not an array", field, v)
	}
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}

		return x.Compare(y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}

		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	}

	xf, ok1 := toFloat(a)
	yf, ok2 := toFloat(b)
	if !ok1 || !ok2 {
		return 0, false
	}

	switch {
	case xf < yf:
		return -1, true
	case xf > yf:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}

	return reflect.DeepEqual(a, b)
}
