package adapter_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/adapter"
)

// countingEmbedder is a mock implementation of adapter.Embedder
type countingEmbedder struct {
	mu        sync.Mutex
	calls     [][]string
	embedFunc func(texts []string) ([][]float32, error)
}

func (m *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	m.mu.Unlock()
	return m.embedFunc(texts)
}

func (m *countingEmbedder) Dimensions() int { return 2 }

func (m *countingEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()

	inner := &countingEmbedder{
		embedFunc: func(texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{float32(len(texts[i])), 1}
			}
			return out, nil
		},
	}

	cached, err := adapter.NewCachedEmbedder(inner, 16)
	gt.NoError(t, err)
	defer cached.Close()

	gt.V(t, cached.Dimensions()).Equal(2)

	first, err := cached.Embed(ctx, []string{"alpha", "beta"})
	gt.NoError(t, err)
	gt.V(t, len(first)).Equal(2)
	gt.V(t, inner.callCount()).Equal(1)

	// ristretto admits asynchronously
	cached.Wait()

	t.Run("hits skip the provider", func(t *testing.T) {
		second, err := cached.Embed(ctx, []string{"alpha", "beta"})
		gt.NoError(t, err)
		gt.V(t, second).Equal(first)
		gt.V(t, inner.callCount()).Equal(1)
	})

	t.Run("only misses reach the provider, order preserved", func(t *testing.T) {
		mixed, err := cached.Embed(ctx, []string{"gamma", "alpha"})
		gt.NoError(t, err)
		gt.V(t, len(mixed)).Equal(2)
		gt.V(t, mixed[0]).Equal([]float32{5, 1}) // len("gamma")
		gt.V(t, mixed[1]).Equal(first[0])

		gt.V(t, inner.callCount()).Equal(2)
		gt.V(t, inner.calls[1]).Equal([]string{"gamma"})
	})
}

func TestCachedEmbedderPropagatesErrors(t *testing.T) {
	ctx := context.Background()

	inner := &countingEmbedder{
		embedFunc: func(texts []string) ([][]float32, error) {
			return nil, errors.New("provider down")
		},
	}

	cached, err := adapter.NewCachedEmbedder(inner, 16)
	gt.NoError(t, err)
	defer cached.Close()

	_, err = cached.Embed(ctx, []string{"anything"})
	gt.Error(t, err)
}

func TestParseStorageURI(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		bucket string
		key    string
	}{
		{name: "gcs uri", uri: "gs://archive-bucket/backups/kioku.jsonl", bucket: "archive-bucket", key: "backups/kioku.jsonl"},
		{name: "gcs bucket only", uri: "gs://archive-bucket", bucket: "archive-bucket", key: ""},
		{name: "local path", uri: "backups/kioku.jsonl", bucket: "", key: "backups/kioku.jsonl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key := adapter.ParseStorageURI(tt.uri)
			gt.V(t, bucket).Equal(tt.bucket)
			gt.V(t, key).Equal(tt.key)
		})
	}
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()

	storage, err := adapter.NewLocalStorage(t.TempDir())
	gt.NoError(t, err)

	w, err := storage.Put(ctx, "exports/archive.jsonl")
	gt.NoError(t, err)
	_, err = w.Write([]byte("hello archive\n"))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := storage.Get(ctx, "exports/archive.jsonl")
	gt.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 64)
	n, _ := r.Read(buf)
	gt.S(t, string(buf[:n])).Contains("hello archive")

	_, err = storage.Get(ctx, "exports/missing.jsonl")
	gt.Error(t, err)
}
