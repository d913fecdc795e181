package embedqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Callbacks receive the outcome of embedding work. OnVector fires once per
// successfully embedded job; OnFailure fires when a job is dropped
// permanently. Both are called without any queue lock held.
type Callbacks struct {
	OnVector  func(id model.MemoryID, vector []float32)
	OnFailure func(id model.MemoryID)
}

// Config tunes the batch processor
type Config struct {
	BatchSize       int           // batch-size flush threshold
	FlushInterval   time.Duration // interval flush trigger
	MaxRetries      int           // provider failures tolerated per job
	BaseBackoff     time.Duration // first retry delay, doubled per attempt
	ProviderTimeout time.Duration // per-call embedding provider timeout
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:       32,
		FlushInterval:   2 * time.Second,
		MaxRetries:      3,
		BaseBackoff:     500 * time.Millisecond,
		ProviderTimeout: 30 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = def.ProviderTimeout
	}
	return c
}

type job struct {
	model.EmbeddingJob
	contractRetried bool
}

// Queue buffers text awaiting embedding and drains it in batches on a fixed
// interval or when the batch-size threshold is reached, whichever comes
// first. Enqueue never blocks on embedding. The processor holds no lock
// while waiting on the provider or on a trigger.
type Queue struct {
	embedder adapter.Embedder
	cfg      Config
	cb       Callbacks

	mu        sync.Mutex
	pending   []*job
	notBefore time.Time // backoff gate after provider failures
	closed    bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a queue. Start must be called before jobs are processed.
func New(embedder adapter.Embedder, cfg Config, cb Callbacks) *Queue {
	return &Queue{
		embedder: embedder,
		cfg:      cfg.normalized(),
		cb:       cb,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the background batch processor
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
}

// Enqueue adds a job and returns immediately
func (q *Queue) Enqueue(id model.MemoryID, text string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, &job{
		EmbeddingJob: model.EmbeddingJob{
			MemoryID:   id,
			Text:       text,
			EnqueuedAt: time.Now(),
		},
	})
	full := len(q.pending) >= q.cfg.BatchSize
	q.mu.Unlock()

	if full {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

// Depth returns the number of jobs awaiting embedding
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the processor after a final best-effort drain. Jobs that still
// fail during the drain are discarded; individual jobs are not cancellable.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			q.drain(ctx)
			return
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}

		q.processAvailable(ctx)
	}
}

// processAvailable drains full batches until the queue is empty or a backoff
// gate is active.
func (q *Queue) processAvailable(ctx context.Context) {
	for {
		batch := q.takeBatch(false)
		if len(batch) == 0 {
			return
		}
		if !q.processBatch(ctx, batch) {
			return
		}
	}
}

// drain makes one final pass over everything left in the queue
func (q *Queue) drain(ctx context.Context) {
	for {
		batch := q.takeBatch(true)
		if len(batch) == 0 {
			return
		}
		if !q.processBatch(ctx, batch) {
			// remaining jobs are discarded on shutdown
			q.mu.Lock()
			discarded := len(q.pending)
			q.pending = nil
			q.mu.Unlock()
			if discarded > 0 {
				logging.From(ctx).Warn("discarded pending embedding jobs on shutdown", "count", discarded)
			}
			return
		}
	}
}

// takeBatch removes up to BatchSize jobs from the head of the queue,
// preserving order. When ignoreBackoff is false an active backoff gate
// yields an empty batch.
func (q *Queue) takeBatch(ignoreBackoff bool) []*job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	if !ignoreBackoff && time.Now().Before(q.notBefore) {
		return nil
	}

	n := q.cfg.BatchSize
	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := q.pending[:n]
	q.pending = append([]*job(nil), q.pending[n:]...)
	return batch
}

// processBatch embeds one batch. Returns false when the batch failed and the
// processor should wait for the next trigger before retrying.
func (q *Queue) processBatch(ctx context.Context, batch []*job) bool {
	logger := logging.From(ctx)

	texts := make([]string, len(batch))
	for i, j := range batch {
		texts[i] = j.Text
	}

	callCtx, cancel := context.WithTimeout(ctx, q.cfg.ProviderTimeout)
	vectors, err := q.embedder.Embed(callCtx, texts)
	cancel()

	if err == nil && len(vectors) != len(batch) {
		err = model.ErrProviderContract
	}

	if err == nil {
		for i, j := range batch {
			q.cb.OnVector(j.MemoryID, vectors[i])
		}
		return true
	}

	if errors.Is(err, model.ErrProviderContract) {
		return q.handleContractViolation(ctx, batch)
	}

	// Transient provider failure (including timeout): exponential backoff,
	// bounded retries per job.
	logger.Warn("embedding provider failed, will retry", "batch", len(batch), "error", err)

	var retry []*job
	for _, j := range batch {
		j.Retries++
		if j.Retries > q.cfg.MaxRetries {
			logger.Error("embedding retries exhausted, memory stays keyword-only",
				"memory_id", j.MemoryID, "retries", j.Retries-1)
			q.cb.OnFailure(j.MemoryID)
			continue
		}
		retry = append(retry, j)
	}

	if len(retry) > 0 {
		backoff := q.cfg.BaseBackoff
		for i := 1; i < retry[0].Retries; i++ {
			backoff *= 2
		}
		q.requeueFront(retry, backoff)
	}
	return false
}

// handleContractViolation requeues the whole batch once, then drops it with
// a logged diagnostic.
func (q *Queue) handleContractViolation(ctx context.Context, batch []*job) bool {
	logger := logging.From(ctx)

	if batch[0].contractRetried {
		logger.Error("provider contract violation repeated, dropping batch", "batch", len(batch))
		for _, j := range batch {
			q.cb.OnFailure(j.MemoryID)
		}
		return true
	}

	logger.Warn("provider contract violation, requeueing batch once", "batch", len(batch))
	for _, j := range batch {
		j.contractRetried = true
	}
	q.requeueFront(batch, q.cfg.BaseBackoff)
	return false
}

func (q *Queue) requeueFront(jobs []*job, backoff time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(jobs, q.pending...)
	q.notBefore = time.Now().Add(backoff)
}
