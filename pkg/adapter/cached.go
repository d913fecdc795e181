package adapter

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// CachedEmbedder memoizes provider responses per text. Admission is
// best-effort (ristretto may drop entries); a miss only costs one more
// provider round trip, so the weaker guarantee is acceptable here.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps an Embedder with a bounded text→vector cache
func NewCachedEmbedder(inner Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			if vec, ok := v.([]float32); ok {
				vectors[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	embedded, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missing) {
		return nil, goerr.New("inner embedder returned wrong vector count",
			goerr.V("requested", len(missing)),
			goerr.V("returned", len(embedded)))
	}

	for i, vec := range embedded {
		vectors[missingIdx[i]] = vec
		c.cache.Set(missing[i], vec, 1)
	}

	return vectors, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache's internal goroutines
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
