package vectorindex_test

import (
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/service/vectorindex"
)

func newIndex(t *testing.T, dim int) *vectorindex.Index {
	t.Helper()
	idx, err := vectorindex.New(dim)
	gt.NoError(t, err)
	return idx
}

func TestInsertAndQuery(t *testing.T) {
	idx := newIndex(t, 3)

	gt.NoError(t, idx.Insert("cat", []float32{1, 0, 0}))
	gt.NoError(t, idx.Insert("dog", []float32{0.9, 0.1, 0}))
	gt.NoError(t, idx.Insert("car", []float32{0, 0, 1}))

	t.Run("exact vector is the top hit", func(t *testing.T) {
		matches, err := idx.Query([]float32{1, 0, 0}, 2)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(2)
		gt.V(t, matches[0].ID).Equal(model.MemoryID("cat"))
		gt.True(t, math.Abs(matches[0].Similarity-1.0) < 1e-6)
		gt.V(t, matches[1].ID).Equal(model.MemoryID("dog"))
	})

	t.Run("similarity is descending", func(t *testing.T) {
		matches, err := idx.Query([]float32{1, 0, 0}, 3)
		gt.NoError(t, err)
		for i := 1; i < len(matches); i++ {
			gt.True(t, matches[i-1].Similarity >= matches[i].Similarity)
		}
	})

	t.Run("k larger than index clamps", func(t *testing.T) {
		matches, err := idx.Query([]float32{1, 0, 0}, 100)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(3)
	})

	t.Run("zero k returns nothing", func(t *testing.T) {
		matches, err := idx.Query([]float32{1, 0, 0}, 0)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(0)
	})
}

func TestDimensionMismatch(t *testing.T) {
	idx := newIndex(t, 3)

	t.Run("insert rejects wrong dimension", func(t *testing.T) {
		err := idx.Insert("bad", []float32{1, 0})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrDimensionMismatch))
	})

	t.Run("query rejects wrong dimension", func(t *testing.T) {
		_, err := idx.Query([]float32{1, 0, 0, 0}, 1)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrDimensionMismatch))
	})
}

func TestEmptyIndex(t *testing.T) {
	idx := newIndex(t, 3)

	matches, err := idx.Query([]float32{1, 0, 0}, 5)
	gt.NoError(t, err)
	gt.V(t, len(matches)).Equal(0)
}

func TestTieBreakByID(t *testing.T) {
	idx := newIndex(t, 2)

	// Same direction, same similarity to the query
	gt.NoError(t, idx.Insert("bbb", []float32{1, 0}))
	gt.NoError(t, idx.Insert("aaa", []float32{2, 0}))

	matches, err := idx.Query([]float32{1, 0}, 2)
	gt.NoError(t, err)
	gt.V(t, len(matches)).Equal(2)
	gt.V(t, matches[0].ID).Equal(model.MemoryID("aaa"))
	gt.V(t, matches[1].ID).Equal(model.MemoryID("bbb"))
}

func TestDeleteAndCompact(t *testing.T) {
	idx := newIndex(t, 2)

	gt.NoError(t, idx.Insert("keep", []float32{1, 0}))
	gt.NoError(t, idx.Insert("drop", []float32{0.99, 0.01}))

	idx.Delete("drop")

	t.Run("tombstoned entry excluded before compaction", func(t *testing.T) {
		matches, err := idx.Query([]float32{1, 0}, 2)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(1)
		gt.V(t, matches[0].ID).Equal(model.MemoryID("keep"))
	})

	t.Run("counters reflect tombstones", func(t *testing.T) {
		gt.V(t, idx.Live()).Equal(1)
		gt.V(t, idx.Tombstoned()).Equal(1)
		gt.False(t, idx.Contains("drop"))
		gt.True(t, idx.Contains("keep"))
	})

	t.Run("compact removes tombstones physically", func(t *testing.T) {
		gt.V(t, idx.Compact()).Equal(1)
		gt.V(t, idx.Tombstoned()).Equal(0)
		gt.V(t, idx.Live()).Equal(1)

		matches, err := idx.Query([]float32{1, 0}, 2)
		gt.NoError(t, err)
		gt.V(t, len(matches)).Equal(1)
	})

	t.Run("compact with nothing to remove is a no-op", func(t *testing.T) {
		gt.V(t, idx.Compact()).Equal(0)
	})
}

func TestReinsertAfterDelete(t *testing.T) {
	idx := newIndex(t, 2)

	gt.NoError(t, idx.Insert("a", []float32{1, 0}))
	idx.Delete("a")
	gt.NoError(t, idx.Insert("a", []float32{0, 1}))

	gt.True(t, idx.Contains("a"))

	matches, err := idx.Query([]float32{0, 1}, 1)
	gt.NoError(t, err)
	gt.V(t, len(matches)).Equal(1)
	gt.True(t, math.Abs(matches[0].Similarity-1.0) < 1e-6)
}

func TestInsertOverwritesExisting(t *testing.T) {
	idx := newIndex(t, 2)

	gt.NoError(t, idx.Insert("a", []float32{1, 0}))
	gt.NoError(t, idx.Insert("a", []float32{0, 1}))

	gt.V(t, idx.Live()).Equal(1)

	matches, err := idx.Query([]float32{0, 1}, 1)
	gt.NoError(t, err)
	gt.V(t, len(matches)).Equal(1)
	gt.V(t, matches[0].ID).Equal(model.MemoryID("a"))
	gt.True(t, math.Abs(matches[0].Similarity-1.0) < 1e-6)
}

func TestDeleteUnknownID(t *testing.T) {
	idx := newIndex(t, 2)
	gt.NoError(t, idx.Insert("a", []float32{1, 0}))

	idx.Delete("ghost")

	gt.V(t, idx.Tombstoned()).Equal(0)
	gt.V(t, idx.Live()).Equal(1)
}
