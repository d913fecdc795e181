package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// WriteInput describes a memory to store
type WriteInput struct {
	Content  string
	Type     model.MemoryType
	Source   string
	Tags     []string
	Metadata map[string]string
}

// Write stores a new memory: admission/importance policy, synchronous
// keyword-index insert and persist, then an asynchronous embedding job. The
// caller never blocks on embedding. A persistence failure rolls the write
// back in memory and is propagated.
func (u *UseCase) Write(ctx context.Context, input WriteInput) (*model.Memory, error) {
	if input.Content == "" {
		return nil, goerr.New("memory content is empty")
	}

	memType := input.Type
	if memType == "" {
		memType = model.MemoryTypeEpisode
	}
	if err := memType.Validate(); err != nil {
		return nil, err
	}

	decision, err := u.policy.Evaluate(ctx, input.Content, memType, input.Source, input.Tags)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate memory policy")
	}
	if !decision.Store {
		return nil, goerr.Wrap(model.ErrRejectedByPolicy, "write skipped",
			goerr.V("content", input.Content))
	}

	if u.cfg.MaxMemories > 0 {
		if live := u.liveCount(); live >= u.cfg.MaxMemories {
			return nil, goerr.Wrap(model.ErrQuotaExceeded, "cannot write memory",
				goerr.V("live", live), goerr.V("max", u.cfg.MaxMemories))
		}
	}

	now := time.Now()
	m := &model.Memory{
		ID:             model.NewMemoryID(),
		Content:        input.Content,
		Type:           memType,
		Source:         input.Source,
		Tags:           input.Tags,
		Metadata:       input.Metadata,
		Importance:     decision.Importance,
		DecayFactor:    1.0,
		VectorState:    model.VectorStatePending,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := u.tindex.Insert(ctx, m.ID, m.Content); err != nil {
		return nil, goerr.Wrap(err, "failed to insert into keyword index", goerr.V("id", m.ID))
	}

	if err := u.repo.PutMemory(ctx, m); err != nil {
		// roll back the keyword insert so memory state never diverges from
		// durable state
		if derr := u.tindex.Delete(ctx, m.ID); derr != nil {
			logging.From(ctx).Error("failed to roll back keyword insert", "memory_id", m.ID, "error", derr)
		}
		return nil, goerr.Wrap(err, "failed to persist memory", goerr.V("id", m.ID))
	}

	u.mu.Lock()
	u.items[m.ID] = m
	u.mu.Unlock()

	u.queue.Enqueue(m.ID, m.Content)

	logging.From(ctx).Debug("memory written",
		"memory_id", m.ID, "type", m.Type, "importance", m.Importance)

	return cloneMemory(m), nil
}

func (u *UseCase) liveCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	count := 0
	for _, m := range u.items {
		if !m.Archived {
			count++
		}
	}
	return count
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
