package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

// Get returns a single memory by ID
func (u *UseCase) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	m, ok := u.items[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
	}
	return cloneMemory(m), nil
}

// ListInput narrows a listing
type ListInput struct {
	Type            model.MemoryType
	Source          string
	IncludeArchived bool
}

// List returns memories ordered by creation time, then ID
func (u *UseCase) List(ctx context.Context, input ListInput) ([]*model.Memory, error) {
	u.mu.RLock()
	var out []*model.Memory
	for _, m := range u.items {
		if !input.IncludeArchived && m.Archived {
			continue
		}
		if input.Type != "" && m.Type != input.Type {
			continue
		}
		if input.Source != "" && m.Source != input.Source {
			continue
		}
		out = append(out, cloneMemory(m))
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateImportance sets a memory's importance, as supplied by an external
// importance evaluator. The new value is read at the next rerank.
func (u *UseCase) UpdateImportance(ctx context.Context, id model.MemoryID, importance float64) error {
	if importance < 0 || importance > 1 {
		return goerr.New("importance out of range", goerr.V("importance", importance))
	}

	u.mu.Lock()
	m, ok := u.items[id]
	if ok {
		m.Importance = importance
		m = cloneMemory(m)
	}
	u.mu.Unlock()

	if !ok {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot update importance", goerr.V("id", id))
	}

	if err := u.repo.UpdateMemory(ctx, m); err != nil {
		return goerr.Wrap(err, "failed to persist importance", goerr.V("id", id))
	}

	u.cache.Invalidate(id)
	return nil
}
