package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Forget deletes a memory: durable delete first, then in-memory tombstones
// and cache invalidation (which cannot fail), so in-memory state never
// diverges from durable state. Physical index compaction happens later
// during Maintain, never here.
func (u *UseCase) Forget(ctx context.Context, id model.MemoryID) error {
	u.mu.RLock()
	_, ok := u.items[id]
	u.mu.RUnlock()
	if !ok {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot forget memory", goerr.V("id", id))
	}

	if err := u.repo.DeleteMemory(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete memory durably", goerr.V("id", id))
	}

	u.vindex.Delete(id)
	if err := u.tindex.Delete(ctx, id); err != nil {
		// the durable delete already succeeded; the stale keyword row is
		// filtered by its tombstone at the next compaction attempt
		logging.From(ctx).Error("failed to tombstone keyword entry", "memory_id", id, "error", err)
	}

	u.mu.Lock()
	delete(u.items, id)
	u.mu.Unlock()

	u.cache.Invalidate(id)

	logging.From(ctx).Debug("memory forgotten", "memory_id", id)
	return nil
}
