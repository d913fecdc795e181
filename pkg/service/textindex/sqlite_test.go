package textindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/service/textindex"
)

func newIndex(t *testing.T) textindex.Index {
	t.Helper()
	idx, err := textindex.NewSQLite(filepath.Join(t.TempDir(), "fts.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestQueryRanking(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	gt.NoError(t, idx.Insert(ctx, "order", "order 48213 shipped to the warehouse"))
	gt.NoError(t, idx.Insert(ctx, "cat", "the cat sat on the mat"))
	gt.NoError(t, idx.Insert(ctx, "dog", "the dog chased the ball"))

	t.Run("matching document ranks first", func(t *testing.T) {
		matches, err := idx.Query(ctx, "cat mat", 10)
		gt.NoError(t, err)
		gt.True(t, len(matches) >= 1)
		gt.V(t, matches[0].ID).Equal(model.MemoryID("cat"))
	})

	t.Run("scores are descending", func(t *testing.T) {
		matches, err := idx.Query(ctx, "the cat", 10)
		gt.NoError(t, err)
		for i := 1; i < len(matches); i++ {
			gt.True(t, matches[i-1].Score >= matches[i].Score)
		}
	})

	t.Run("no match returns empty", func(t *testing.T) {
		matches, err := idx.Query(ctx, "zeppelin", 10)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(0)
	})

	t.Run("limit is respected", func(t *testing.T) {
		matches, err := idx.Query(ctx, "the", 1)
		gt.NoError(t, err)
		gt.True(t, len(matches) <= 1)
	})
}

func TestSpecialCharacterQueries(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	gt.NoError(t, idx.Insert(ctx, "order", "order #48213 shipped yesterday"))

	tests := []struct {
		name  string
		query string
	}{
		{name: "hash token", query: "#48213"},
		{name: "quoted phrase", query: `"order" shipped`},
		{name: "parens and stars", query: "(order*)"},
		{name: "colon operator", query: "order:48213"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := idx.Query(ctx, tt.query, 5)
			gt.NoError(t, err)
			gt.True(t, len(matches) >= 1)
			gt.V(t, matches[0].ID).Equal(model.MemoryID("order"))
		})
	}

	t.Run("only special characters yields empty result", func(t *testing.T) {
		matches, err := idx.Query(ctx, `"*()#`, 5)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(0)
	})
}

func TestReinsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	gt.NoError(t, idx.Insert(ctx, "note", "original wording about databases"))
	gt.NoError(t, idx.Insert(ctx, "note", "rewritten wording about caching"))

	matches, err := idx.Query(ctx, "databases", 5)
	gt.NoError(t, err)
	gt.V(t, len(matches)).Equal(0)

	matches, err = idx.Query(ctx, "caching", 5)
	gt.NoError(t, err)
	gt.V(t, len(matches)).Equal(1)
}

func TestTombstoneAndCompact(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	gt.NoError(t, idx.Insert(ctx, "keep", "shared keyword alpha"))
	gt.NoError(t, idx.Insert(ctx, "drop", "shared keyword beta"))

	gt.NoError(t, idx.Delete(ctx, "drop"))

	t.Run("tombstoned entry excluded from queries", func(t *testing.T) {
		matches, err := idx.Query(ctx, "shared keyword", 10)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(1)
		gt.V(t, matches[0].ID).Equal(model.MemoryID("keep"))
	})

	t.Run("compact removes tombstoned rows", func(t *testing.T) {
		removed, err := idx.Compact(ctx)
		gt.NoError(t, err)
		gt.V(t, removed).Equal(1)

		matches, err := idx.Query(ctx, "shared keyword", 10)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(1)
	})

	t.Run("reinsert clears tombstone", func(t *testing.T) {
		gt.NoError(t, idx.Delete(ctx, "keep"))
		gt.NoError(t, idx.Insert(ctx, "keep", "shared keyword alpha"))

		matches, err := idx.Query(ctx, "alpha", 10)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(1)
	})
}
