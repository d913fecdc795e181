package searchcache

import "time"

// SetNowForTest overrides the cache clock so tests can control TTL expiry
func (c *Cache) SetNowForTest(now func() time.Time) {
	c.now = now
}
