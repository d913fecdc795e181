package searchcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/kioku/pkg/model"
)

// Fingerprint is a pure function of the normalized query text, k and filter
// parameters, so identical logical queries always hit the same slot.
func Fingerprint(query string, k int, filters string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", normalized, k, filters))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	fingerprint string
	results     []*model.RankedResult
	insertedAt  time.Time
}

// Cache memoizes recent retrieval results. Capacity-bounded with LRU
// eviction; entries expire after the TTL. Writes affecting a memory ID
// invalidate every entry whose result set contains that ID, via a linear
// scan over the bounded entry set; unrelated entries stay cached.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element
	now      func() time.Time
}

const (
	DefaultCapacity = 128
	DefaultTTL      = 5 * time.Minute
)

// New creates a cache with the given capacity and TTL
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached results for the fingerprint, or false on a miss or
// an expired entry.
func (c *Cache) Get(fingerprint string) ([]*model.RankedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fingerprint]
	if !ok {
		return nil, false
	}

	e := elem.Value.(*entry)
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeLocked(elem)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return copyResults(e.results), true
}

// Put stores results under the fingerprint, evicting the least recently used
// entry when full.
func (c *Cache) Put(fingerprint string, results []*model.RankedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fingerprint]; ok {
		elem.Value.(*entry).results = copyResults(results)
		elem.Value.(*entry).insertedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	elem := c.order.PushFront(&entry{
		fingerprint: fingerprint,
		results:     copyResults(results),
		insertedAt:  c.now(),
	})
	c.items[fingerprint] = elem
}

// Invalidate drops every entry whose result set contains the given ID
func (c *Cache) Invalidate(id model.MemoryID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []*list.Element
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		for _, r := range elem.Value.(*entry).results {
			if r.ID == id {
				stale = append(stale, elem)
				break
			}
		}
	}

	for _, elem := range stale {
		c.removeLocked(elem)
	}
	return len(stale)
}

// Purge drops all entries
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of cached entries, including not-yet-expired ones
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) removeLocked(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).fingerprint)
}

func copyResults(results []*model.RankedResult) []*model.RankedResult {
	out := make([]*model.RankedResult, len(results))
	for i, r := range results {
		cp := *r
		out[i] = &cp
	}
	return out
}
