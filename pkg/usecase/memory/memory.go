package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/policy"
	"github.com/m-mizutani/kioku/pkg/service/embedqueue"
	"github.com/m-mizutani/kioku/pkg/service/searchcache"
	"github.com/m-mizutani/kioku/pkg/service/textindex"
	"github.com/m-mizutani/kioku/pkg/service/vectorindex"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// UseCase is the memory coordinator. It is the sole owner of Memory
// instances; both indexes reference memories by ID only. Writes insert into
// the keyword index and persist synchronously, then queue embedding work.
// Reads go cache → dual-index query → rerank → cache store.
type UseCase struct {
	repo     interfaces.Repository
	embedder adapter.Embedder
	vindex   *vectorindex.Index
	tindex   textindex.Index
	cache    *searchcache.Cache
	queue    *embedqueue.Queue
	policy   *policy.Evaluator
	cfg      Config

	mu     sync.RWMutex
	items  map[model.MemoryID]*model.Memory
	loaded atomic.Bool

	// detached from the construction context so queue callbacks can persist
	// after the originating request is gone
	bgCtx context.Context
}

// NewInput wires the coordinator's collaborators
type NewInput struct {
	Repo      interfaces.Repository
	Embedder  adapter.Embedder
	TextIndex textindex.Index
	Policy    *policy.Evaluator
	Config    Config
}

// New creates the coordinator and starts the embedding batch processor.
// Call Load before serving retrievals and Close on shutdown.
func New(ctx context.Context, input NewInput) (*UseCase, error) {
	if input.Repo == nil {
		return nil, goerr.New("repository is required")
	}
	if input.Embedder == nil {
		return nil, goerr.New("embedder is required")
	}
	if input.TextIndex == nil {
		return nil, goerr.New("text index is required")
	}

	cfg := input.Config.normalized()

	if input.Embedder.Dimensions() != cfg.Dimensions {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedder does not match index dimension",
			goerr.V("embedder", input.Embedder.Dimensions()),
			goerr.V("index", cfg.Dimensions))
	}

	vindex, err := vectorindex.New(cfg.Dimensions, vectorindex.WithEfSearch(cfg.EfSearch))
	if err != nil {
		return nil, err
	}

	pol := input.Policy
	if pol == nil {
		pol, err = policy.New(ctx, "")
		if err != nil {
			return nil, err
		}
	}

	uc := &UseCase{
		repo:     input.Repo,
		embedder: input.Embedder,
		vindex:   vindex,
		tindex:   input.TextIndex,
		cache:    searchcache.New(cfg.CacheSize, cfg.CacheTTL()),
		policy:   pol,
		cfg:      cfg,
		items:    make(map[model.MemoryID]*model.Memory),
		bgCtx:    context.WithoutCancel(ctx),
	}

	uc.queue = embedqueue.New(input.Embedder, cfg.QueueConfig(), embedqueue.Callbacks{
		OnVector:  uc.handleVector,
		OnFailure: uc.handleVectorFailure,
	})
	uc.queue.Start(uc.bgCtx)

	return uc, nil
}

// Load replays persisted records into both indexes. Memories still pending
// embedding are re-enqueued; archived ones stay out of the indexes but
// remain listable. Retrieval before a successful Load returns empty results.
func (u *UseCase) Load(ctx context.Context) error {
	logger := logging.From(ctx)

	records, err := u.repo.ListMemories(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to load memories")
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	for _, m := range records {
		u.items[m.ID] = m

		if m.Archived {
			continue
		}

		if err := u.tindex.Insert(ctx, m.ID, m.Content); err != nil {
			return goerr.Wrap(err, "failed to rebuild keyword index", goerr.V("id", m.ID))
		}

		switch m.VectorState {
		case model.VectorStateIndexed:
			if len(m.Embedding) == u.cfg.Dimensions {
				if err := u.vindex.Insert(m.ID, m.Embedding); err != nil {
					return goerr.Wrap(err, "failed to rebuild vector index", goerr.V("id", m.ID))
				}
			} else {
				// stored vector is unusable; go back through the queue
				m.VectorState = model.VectorStatePending
				u.queue.Enqueue(m.ID, m.Content)
			}
		case model.VectorStatePending:
			u.queue.Enqueue(m.ID, m.Content)
		case model.VectorStateFailed:
			// terminal: keyword-only
		}
	}

	u.loaded.Store(true)
	logger.Info("memory engine loaded", "memories", len(records), "queue_depth", u.queue.Depth())

	return nil
}

// Close drains the embedding queue and closes collaborators
func (u *UseCase) Close() error {
	u.queue.Close()

	if err := u.tindex.Close(); err != nil {
		return err
	}
	if err := u.repo.Close(); err != nil {
		return err
	}
	return nil
}

// handleVector is the queue's success callback: the deferred half of the
// write path.
func (u *UseCase) handleVector(id model.MemoryID, vector []float32) {
	logger := logging.From(u.bgCtx)

	if len(vector) != u.cfg.Dimensions {
		logger.Error("provider returned vector of wrong dimension",
			"memory_id", id, "expected", u.cfg.Dimensions, "actual", len(vector))
		u.handleVectorFailure(id)
		return
	}

	if err := u.vindex.Insert(id, vector); err != nil {
		logger.Error("failed to insert vector", "memory_id", id, "error", err)
		u.handleVectorFailure(id)
		return
	}

	if err := u.repo.PutVector(u.bgCtx, id, vector, model.VectorStateIndexed); err != nil {
		// keep durable state authoritative: undo the in-memory insert and
		// leave the memory pending
		u.vindex.Delete(id)
		logger.Error("failed to persist vector, rolled back index insert", "memory_id", id, "error", err)
		return
	}

	u.mu.Lock()
	if m, ok := u.items[id]; ok {
		m.Embedding = vector
		m.VectorState = model.VectorStateIndexed
	}
	u.mu.Unlock()

	// results containing this memory may rank differently now
	u.cache.Invalidate(id)

	logger.Debug("memory vector indexed", "memory_id", id)
}

// handleVectorFailure marks a memory as permanently keyword-only
func (u *UseCase) handleVectorFailure(id model.MemoryID) {
	logger := logging.From(u.bgCtx)

	u.mu.Lock()
	if m, ok := u.items[id]; ok {
		m.VectorState = model.VectorStateFailed
	}
	u.mu.Unlock()

	if err := u.repo.PutVector(u.bgCtx, id, nil, model.VectorStateFailed); err != nil {
		logger.Warn("failed to persist vector failure state", "memory_id", id, "error", err)
	}

	logger.Warn("memory is keyword-only after embedding failure", "memory_id", id)
}

// QueueDepth exposes the pending embedding job count
func (u *UseCase) QueueDepth() int {
	return u.queue.Depth()
}
