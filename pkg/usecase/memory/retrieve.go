package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/service/searchcache"
	"github.com/m-mizutani/kioku/pkg/service/textindex"
	"github.com/m-mizutani/kioku/pkg/service/vectorindex"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Filters narrow a retrieval to matching memories
type Filters struct {
	Type   model.MemoryType
	Source string
	Tags   []string
	Window *model.TimeWindow
}

// canonical renders the filters deterministically for cache fingerprinting
func (f Filters) canonical() string {
	tags := append([]string(nil), f.Tags...)
	sort.Strings(tags)

	window := ""
	if f.Window != nil {
		window = fmt.Sprintf("%d..%d", f.Window.From.UnixNano(), f.Window.To.UnixNano())
	}

	return fmt.Sprintf("type=%s;source=%s;tags=%s;window=%s",
		f.Type, f.Source, strings.Join(tags, ","), window)
}

func (f Filters) match(m *model.Memory) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Source != "" && m.Source != f.Source {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, tag := range m.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Window != nil && !f.Window.Contains(m.CreatedAt) {
		return false
	}
	return true
}

const defaultRetrieveLimit = 5

// Retrieve answers a query: cache check, parallel dual-index query with an
// inflated candidate count, rerank, truncate to k, touch, cache store. A
// query-embedding failure degrades the read to keyword-only rather than
// failing; a cancelled read caches nothing.
func (u *UseCase) Retrieve(ctx context.Context, query string, k int, filters Filters) (*model.RetrievalResult, error) {
	logger := logging.From(ctx)
	start := time.Now()

	if k <= 0 {
		k = defaultRetrieveLimit
	}

	result := &model.RetrievalResult{
		Query:    query,
		Strategy: model.StrategyHybrid,
	}

	if !u.loaded.Load() {
		// degrade rather than fail callers that race startup
		logger.Warn("retrieve before load, returning empty result", "error", model.ErrIndexNotReady)
		result.NoRelevantMemory = true
		result.ElapsedMillis = time.Since(start).Milliseconds()
		return result, nil
	}

	fingerprint := searchcache.Fingerprint(query, k, filters.canonical())
	if cached, ok := u.cache.Get(fingerprint); ok {
		result.Strategy = model.StrategyCache
		result.Results = cached
		result.NoRelevantMemory = len(cached) == 0
		result.ElapsedMillis = time.Since(start).Milliseconds()
		return result, nil
	}

	candidates := u.cfg.CandidateCount(k)

	var (
		wg         sync.WaitGroup
		vecMatches []vectorindex.Match
		kwMatches  []textindex.Match
		vecErr     error
		kwErr      error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectors, err := u.embedder.Embed(ctx, []string{query})
		if err != nil || len(vectors) != 1 {
			vecErr = goerr.Wrap(err, "failed to embed query")
			return
		}
		vecMatches, vecErr = u.vindex.Query(vectors[0], candidates)
	}()
	go func() {
		defer wg.Done()
		kwMatches, kwErr = u.tindex.Query(ctx, query, candidates)
	}()
	wg.Wait()

	// cancelled reads discard partial results and cache nothing
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "retrieve cancelled")
	}

	if kwErr != nil {
		return nil, goerr.Wrap(kwErr, "keyword query failed")
	}
	if vecErr != nil {
		// vector path unavailable: keyword-only degradation, never a hard
		// error for the caller
		logger.Warn("vector path degraded to keyword-only", "error", vecErr)
		result.Strategy = model.StrategyKeyword
		vecMatches = nil
	}

	result.TotalCandidates = len(vecMatches) + len(kwMatches)

	now := time.Now()
	ranked := u.rerank(now, vecMatches, kwMatches, filters)
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	u.touch(ctx, now, ranked)

	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "retrieve cancelled")
	}
	u.cache.Put(fingerprint, ranked)

	result.Results = ranked
	result.NoRelevantMemory = len(ranked) == 0
	result.ElapsedMillis = time.Since(start).Milliseconds()

	logger.Debug("retrieve completed",
		"strategy", result.Strategy,
		"candidates", result.TotalCandidates,
		"results", len(ranked),
		"elapsed_ms", result.ElapsedMillis)

	return result, nil
}

// touch refreshes access tracking on each returned memory. Persistence here
// is best-effort; a failed touch must not fail the read.
func (u *UseCase) touch(ctx context.Context, now time.Time, ranked []*model.RankedResult) {
	logger := logging.From(ctx)

	for _, r := range ranked {
		u.mu.Lock()
		m, ok := u.items[r.ID]
		if ok {
			m.Touch(now)
			m = cloneMemory(m)
		}
		u.mu.Unlock()

		if !ok {
			continue
		}
		if err := u.repo.UpdateMemory(ctx, m); err != nil {
			logger.Warn("failed to persist access timestamp", "memory_id", r.ID, "error", err)
		}
	}
}
