package readstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/chat-backend/internal/projection"
)

type store interface {
	projection.SyncPort
	projection.Finder
}

type doc struct {
	ID      string    `bson:"_id"`
	Status  string    `bson:"status,omitempty"`
	Created time.Time `bson:"created,omitempty"`
	Seen    time.Time `bson:"seen,omitempty"`
	Tags    []string  `bson:"tags,omitempty"`
	Title   string    `bson:"title,omitempty"`
}

var (
	tA = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tB = tA.Add(time.Minute)
)

// runSyncPortContract checks the update semantics every SyncPort implementation must share.
// newStore must return an empty store per call; coll names are unique per subtest.
func runSyncPortContract(t *testing.T, newStore func(t *testing.T) store) {
	t.Run("upsert creates with insert-only fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		mut := projection.Mutation{
			SetOnInsert: map[string]any{"created": tA, "status": "sent"},
			Set:         map[string]any{"title": "one"},
			AddToSet:    map[string][]any{"tags": {"a"}},
			Upsert:      true,
		}
		require.NoError(t, s.Upsert(ctx, "c1", projection.Match{ID: "x"}, mut))

		mut.SetOnInsert = map[string]any{"created": tB, "status": "other"}
		mut.Set = map[string]any{"title": "two"}
		mut.AddToSet = map[string][]any{"tags": {"a", "b"}}
		require.NoError(t, s.Upsert(ctx, "c1", projection.Match{ID: "x"}, mut))

		var got doc
		found, err := s.Find(ctx, "c1", "x", &got)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, tA, got.Created)
		assert.Equal(t, "sent", got.Status)
		assert.Equal(t, "two", got.Title)
		assert.Equal(t, []string{"a", "b"}, got.Tags)
	})

	t.Run("non-upsert on missing document is a no-op", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, "c2", projection.Match{ID: "missing"}, projection.Mutation{
			Set: map[string]any{"title": "ghost"},
		}))

		found, err := s.Find(ctx, "c2", "missing", &doc{})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("max never moves backwards", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		m := projection.Match{ID: "x"}

		require.NoError(t, s.Upsert(ctx, "c3", m, projection.Mutation{Max: map[string]any{"seen": tB}, Upsert: true}))
		require.NoError(t, s.Upsert(ctx, "c3", m, projection.Mutation{Max: map[string]any{"seen": tA}, Upsert: true}))

		var got doc
		_, err := s.Find(ctx, "c3", "x", &got)
		require.NoError(t, err)
		assert.Equal(t, tB, got.Seen)
	})

	t.Run("monotonic guard rejects stale write", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		write := func(at time.Time, title string) {
			require.NoError(t, s.Upsert(ctx, "c4", projection.Match{
				ID:     "x",
				Guards: []projection.Cond{projection.AbsentOrAtMost("seen", at)},
			}, projection.Mutation{
				Set:    map[string]any{"seen": at, "title": title},
				Upsert: true,
			}))
		}

		write(tB, "new")
		write(tA, "stale")

		var got doc
		_, err := s.Find(ctx, "c4", "x", &got)
		require.NoError(t, err)
		assert.Equal(t, "new", got.Title)
		assert.Equal(t, tB, got.Seen)
	})

	t.Run("not-in guard protects later state", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, "c5", projection.Match{ID: "x"}, projection.Mutation{
			Set: map[string]any{"status": "read"}, Upsert: true,
		}))
		require.NoError(t, s.Upsert(ctx, "c5", projection.Match{
			ID:     "x",
			Guards: []projection.Cond{projection.NotIn("status", "read")},
		}, projection.Mutation{
			Set: map[string]any{"status": "delivered"}, Upsert: true,
		}))

		var got doc
		_, err := s.Find(ctx, "c5", "x", &got)
		require.NoError(t, err)
		assert.Equal(t, "read", got.Status)
	})

	t.Run("pull removes members", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		m := projection.Match{ID: "x"}

		require.NoError(t, s.Upsert(ctx, "c6", m, projection.Mutation{
			AddToSet: map[string][]any{"tags": {"a", "b", "c"}}, Upsert: true,
		}))
		require.NoError(t, s.Upsert(ctx, "c6", m, projection.Mutation{
			Pull: map[string][]any{"tags": {"b"}},
		}))
		require.NoError(t, s.Upsert(ctx, "c6", m, projection.Mutation{
			Pull: map[string][]any{"tags": {"b"}},
		}))

		var got doc
		_, err := s.Find(ctx, "c6", "x", &got)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, got.Tags)
	})

	t.Run("delete honors guards", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, "c7", projection.Match{ID: "x"}, projection.Mutation{
			Set: map[string]any{"status": "sent"}, Upsert: true,
		}))

		require.NoError(t, s.Delete(ctx, "c7", projection.Match{
			ID: "x", Guards: []projection.Cond{projection.Eq("status", "read")},
		}))
		found, err := s.Find(ctx, "c7", "x", &doc{})
		require.NoError(t, err)
		assert.True(t, found)

		require.NoError(t, s.Delete(ctx, "c7", projection.Match{ID: "x"}))
		require.NoError(t, s.Delete(ctx, "c7", projection.Match{ID: "x"}))
		found, err = s.Find(ctx, "c7", "x", &doc{})
		require.NoError(t, err)
		assert.False(t, found)
	})
}
