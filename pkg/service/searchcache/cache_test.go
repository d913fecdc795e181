package searchcache_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/service/searchcache"
)

func results(ids ...model.MemoryID) []*model.RankedResult {
	out := make([]*model.RankedResult, len(ids))
	for i, id := range ids {
		out[i] = &model.RankedResult{ID: id, Score: 1.0 - float64(i)*0.1}
	}
	return out
}

func TestFingerprint(t *testing.T) {
	t.Run("whitespace and case normalize to the same slot", func(t *testing.T) {
		a := searchcache.Fingerprint("What  did the USER   say?", 5, "")
		b := searchcache.Fingerprint("what did the user say?", 5, "")
		gt.V(t, a).Equal(b)
	})

	t.Run("k changes the fingerprint", func(t *testing.T) {
		a := searchcache.Fingerprint("query", 5, "")
		b := searchcache.Fingerprint("query", 10, "")
		gt.V(t, a == b).Equal(false)
	})

	t.Run("filters change the fingerprint", func(t *testing.T) {
		a := searchcache.Fingerprint("query", 5, "type=fact")
		b := searchcache.Fingerprint("query", 5, "")
		gt.V(t, a == b).Equal(false)
	})

	t.Run("pure function of inputs", func(t *testing.T) {
		a := searchcache.Fingerprint("query", 5, "type=fact")
		b := searchcache.Fingerprint("query", 5, "type=fact")
		gt.V(t, a).Equal(b)
	})
}

func TestGetPut(t *testing.T) {
	cache := searchcache.New(4, time.Minute)

	fp := searchcache.Fingerprint("hello", 5, "")
	cache.Put(fp, results("a", "b"))

	t.Run("hit returns stored results", func(t *testing.T) {
		got, ok := cache.Get(fp)
		gt.True(t, ok)
		gt.V(t, len(got)).Equal(2)
		gt.V(t, got[0].ID).Equal(model.MemoryID("a"))
	})

	t.Run("miss on unknown fingerprint", func(t *testing.T) {
		_, ok := cache.Get("unknown")
		gt.False(t, ok)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		got, ok := cache.Get(fp)
		gt.True(t, ok)
		got[0].Score = -99

		again, ok := cache.Get(fp)
		gt.True(t, ok)
		gt.V(t, again[0].Score).Equal(1.0)
	})
}

func TestLRUEviction(t *testing.T) {
	cache := searchcache.New(2, time.Minute)

	cache.Put("a", results("1"))
	cache.Put("b", results("2"))

	// Touch "a" so "b" becomes least recently used
	_, ok := cache.Get("a")
	gt.True(t, ok)

	cache.Put("c", results("3"))

	_, ok = cache.Get("b")
	gt.False(t, ok)

	_, ok = cache.Get("a")
	gt.True(t, ok)
	_, ok = cache.Get("c")
	gt.True(t, ok)
	gt.V(t, cache.Len()).Equal(2)
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	cache := searchcache.New(4, time.Minute)
	cache.SetNowForTest(func() time.Time { return now })

	cache.Put("a", results("1"))

	_, ok := cache.Get("a")
	gt.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok = cache.Get("a")
	gt.False(t, ok)
	gt.V(t, cache.Len()).Equal(0)
}

func TestInvalidate(t *testing.T) {
	cache := searchcache.New(8, time.Minute)

	cache.Put("q1", results("x", "y"))
	cache.Put("q2", results("y", "z"))
	cache.Put("q3", results("z"))

	t.Run("drops only entries containing the ID", func(t *testing.T) {
		gt.V(t, cache.Invalidate("y")).Equal(2)

		_, ok := cache.Get("q1")
		gt.False(t, ok)
		_, ok = cache.Get("q2")
		gt.False(t, ok)
		_, ok = cache.Get("q3")
		gt.True(t, ok)
	})

	t.Run("unknown ID drops nothing", func(t *testing.T) {
		gt.V(t, cache.Invalidate("ghost")).Equal(0)
		gt.V(t, cache.Len()).Equal(1)
	})
}

func TestPurge(t *testing.T) {
	cache := searchcache.New(8, time.Minute)
	cache.Put("a", results("1"))
	cache.Put("b", results("2"))

	cache.Purge()

	gt.V(t, cache.Len()).Equal(0)
	_, ok := cache.Get("a")
	gt.False(t, ok)
}
