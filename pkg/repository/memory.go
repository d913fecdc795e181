package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
)

// memoryRepo is a map-backed Repository for tests and throwaway runs
type memoryRepo struct {
	mu       sync.RWMutex
	memories map[model.MemoryID]*model.Memory
}

// NewMemory creates an in-memory repository
func NewMemory() interfaces.Repository {
	return &memoryRepo{
		memories: make(map[model.MemoryID]*model.Memory),
	}
}

func (r *memoryRepo) PutMemory(ctx context.Context, memory *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := cloneMemory(memory)
	r.memories[memory.ID] = cp
	return nil
}

func (r *memoryRepo) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.memories[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
	}
	return cloneMemory(m), nil
}

func (r *memoryRepo) ListMemories(ctx context.Context, filters ...interfaces.Filter) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Memory
	for _, m := range r.memories {
		match := true
		for _, f := range filters {
			if !f(m) {
				match = false
				break
			}
		}
		if match {
			out = append(out, cloneMemory(m))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryRepo) UpdateMemory(ctx context.Context, memory *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.memories[memory.ID]; !ok {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot update missing memory", goerr.V("id", memory.ID))
	}
	r.memories[memory.ID] = cloneMemory(memory)
	return nil
}

func (r *memoryRepo) PutVector(ctx context.Context, id model.MemoryID, vector []float32, state model.VectorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.memories[id]
	if !ok {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot store vector for missing memory", goerr.V("id", id))
	}
	m.Embedding = append([]float32(nil), vector...)
	m.VectorState = state
	return nil
}

func (r *memoryRepo) DeleteMemory(ctx context.Context, id model.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.memories[id]; !ok {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot delete missing memory", goerr.V("id", id))
	}
	delete(r.memories, id)
	return nil
}

func (r *memoryRepo) CountMemories(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, m := range r.memories {
		if !m.Archived {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) Close() error {
	return nil
}

func cloneMemory(m *model.Memory) *model.Memory {
	cp := *m
	cp.Tags = append([]string(nil), m.Tags...)
	cp.Embedding = append([]float32(nil), m.Embedding...)
	if m.Metadata != nil {
		cp.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
