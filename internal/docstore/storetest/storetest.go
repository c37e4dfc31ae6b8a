// Package storetest holds the behaviour every docstore.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/docstore"
)

// Run executes the contract suite against stores built by newStore. Each
// subtest receives a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, docstore.Tasks, docstore.Doc{"title": "Write report", "done": false, "points": 3})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := s.Get(ctx, docstore.Tasks, id)
		require.NoError(t, err)
		assert.Equal(t, id, doc["id"])
		assert.Equal(t, "Write report", doc["title"])
		assert.Equal(t, false, doc["done"])
		assert.Equal(t, float64(3), doc["points"])
	})

	t.Run("create with explicit id", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, docstore.Users, docstore.Doc{"id": "uid-1", "name": "Ana"})
		require.NoError(t, err)
		assert.Equal(t, "uid-1", id)

		_, err = s.Create(ctx, docstore.Users, docstore.Doc{"id": "uid-1", "name": "Other"})
		assert.ErrorIs(t, err, docstore.ErrExists)

		_, err = s.Create(ctx, docstore.Tasks, docstore.Doc{"id": "uid-1"})
		assert.NoError(t, err, "ids are scoped per collection")
	})

	t.Run("missing documents", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, docstore.Users, "nope")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.ErrorIs(t, s.Update(ctx, docstore.Users, "nope", docstore.Doc{"a": 1}), docstore.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, docstore.Users, "nope"), docstore.ErrNotFound)
	})

	t.Run("update merges fields", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, docstore.Users, docstore.Doc{"name": "Ana", "role": "dev-team", "is_approved": false})
		require.NoError(t, err)
		require.NoError(t, s.Update(ctx, docstore.Users, id, docstore.Doc{"is_approved": true, "id": "ignored"}))

		doc, err := s.Get(ctx, docstore.Users, id)
		require.NoError(t, err)
		assert.Equal(t, true, doc["is_approved"])
		assert.Equal(t, "Ana", doc["name"])
		assert.Equal(t, id, doc["id"])
	})

	t.Run("nested values survive", func(t *testing.T) {
		s := newStore(t)
		details := map[string]any{"memberName": "Ana", "changes": map[string]any{"name": true}}
		id, err := s.Create(ctx, docstore.Activities, docstore.Doc{"details": details})
		require.NoError(t, err)
		doc, err := s.Get(ctx, docstore.Activities, id)
		require.NoError(t, err)
		assert.Equal(t, details, doc["details"])
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, docstore.SubDomains, docstore.Doc{"name": "portal"})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, docstore.SubDomains, id))
		_, err = s.Get(ctx, docstore.SubDomains, id)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("query where equals", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, []docstore.Doc{
			{"name": "a", "is_approved": true, "role": "admin"},
			{"name": "b", "is_approved": false, "role": "dev-team"},
			{"name": "c", "is_approved": true, "role": "dev-team"},
		})
		docs, err := s.Query(ctx, docstore.Users, docstore.Query{}.WhereEquals("is_approved", true))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, names(docs))

		docs, err = s.Query(ctx, docstore.Users, docstore.Query{}.WhereEquals("is_approved", true).WhereEquals("role", "dev-team"))
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, names(docs))

		docs, err = s.Query(ctx, docstore.Users, docstore.Query{}.WhereEquals("role", "owner"))
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("query where at least", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, []docstore.Doc{
			{"name": "a", "timestamp": "2025-03-01T12:00:00.000000001Z"},
			{"name": "b", "timestamp": "2025-03-01T12:00:00.000000002Z"},
			{"name": "c", "timestamp": "2025-03-01T12:00:00.000000003Z"},
		})
		q := docstore.Query{}.WhereAtLeast("timestamp", "2025-03-01T12:00:00.000000002Z").Ordered("timestamp", false)
		docs, err := s.Query(ctx, docstore.Users, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, names(docs))
	})

	t.Run("query order and limit", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, []docstore.Doc{
			{"name": "first", "created_at": "2024-01-01T00:00:00.000000000Z"},
			{"name": "third", "created_at": "2024-01-03T00:00:00.000000000Z"},
			{"name": "second", "created_at": "2024-01-02T00:00:00.000000000Z"},
		})
		docs, err := s.Query(ctx, docstore.Users, docstore.Query{}.Ordered("created_at", true))
		require.NoError(t, err)
		assert.Equal(t, []string{"third", "second", "first"}, names(docs))

		docs, err = s.Query(ctx, docstore.Users, docstore.Query{}.Ordered("created_at", false).Limited(2))
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, names(docs))
	})

	t.Run("query ties keep insertion order", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, []docstore.Doc{
			{"name": "x", "rank": 1},
			{"name": "y", "rank": 1},
			{"name": "z", "rank": 2},
		})
		docs, err := s.Query(ctx, docstore.Users, docstore.Query{}.Ordered("rank", true))
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "x", "y"}, names(docs))
	})

	t.Run("query rejects unsafe fields", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Query(ctx, docstore.Users, docstore.Query{}.WhereEquals("name') OR 1=1 --", "x"))
		assert.Error(t, err)
	})

	t.Run("concurrent creates", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Create(ctx, docstore.Activities, docstore.Doc{"n": i})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		docs, err := s.Query(ctx, docstore.Activities, docstore.Query{})
		require.NoError(t, err)
		assert.Len(t, docs, 20)
	})
}

func seed(t *testing.T, s docstore.Store, docs []docstore.Doc) {
	t.Helper()
	for i, d := range docs {
		_, err := s.Create(context.Background(), docstore.Users, d)
		require.NoError(t, err, fmt.Sprintf("seed %d", i))
	}
}

func names(docs []docstore.Doc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		name, _ := d["name"].(string)
		out = append(out, name)
	}
	return out
}
