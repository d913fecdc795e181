package memory

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/model"
)

// Stats is a point-in-time snapshot of the engine
type Stats struct {
	Total            int
	Archived         int
	ByState          map[model.VectorState]int
	ByType           map[model.MemoryType]int
	VectorLive       int
	VectorTombstoned int
	CacheEntries     int
	QueueDepth       int
}

// Stats reports counts by state and type plus index, cache and queue sizes
func (u *UseCase) Stats(ctx context.Context) *Stats {
	stats := &Stats{
		ByState: make(map[model.VectorState]int),
		ByType:  make(map[model.MemoryType]int),
	}

	u.mu.RLock()
	for _, m := range u.items {
		stats.Total++
		if m.Archived {
			stats.Archived++
			continue
		}
		stats.ByState[m.VectorState]++
		stats.ByType[m.Type]++
	}
	u.mu.RUnlock()

	stats.VectorLive = u.vindex.Live()
	stats.VectorTombstoned = u.vindex.Tombstoned()
	stats.CacheEntries = u.cache.Len()
	stats.QueueDepth = u.queue.Depth()

	return stats
}
