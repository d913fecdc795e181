package vectorindex

import (
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

// Match is a single vector query hit. Similarity is cosine similarity in
// [-1, 1]; results are ordered by descending similarity.
type Match struct {
	ID         model.MemoryID
	Similarity float64
}

// Index is an approximate-nearest-neighbor index over fixed-dimension
// vectors, backed by an HNSW graph. Deletes are tombstoned and removed
// physically only by Compact. Queries run concurrently under a read lock;
// each insert, delete and compaction takes the write lock for exactly one
// structural mutation.
type Index struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[model.MemoryID]
	vectors    map[model.MemoryID][]float32
	tombstones map[model.MemoryID]struct{}
	dim        int
	efSearch   int
}

type Option func(*Index)

// WithEfSearch sets the HNSW search breadth. Larger values trade query speed
// for recall; this is the index's accuracy/speed knob.
func WithEfSearch(ef int) Option {
	return func(x *Index) {
		if ef > 0 {
			x.efSearch = ef
		}
	}
}

const defaultEfSearch = 64

// New creates an empty index with the given fixed dimensionality
func New(dim int, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, goerr.New("vector dimension must be positive", goerr.V("dim", dim))
	}

	x := &Index{
		vectors:    make(map[model.MemoryID][]float32),
		tombstones: make(map[model.MemoryID]struct{}),
		dim:        dim,
		efSearch:   defaultEfSearch,
	}
	for _, opt := range opts {
		opt(x)
	}
	x.graph = x.newGraph()

	return x, nil
}

func (x *Index) newGraph() *hnsw.Graph[model.MemoryID] {
	g := hnsw.NewGraph[model.MemoryID]()
	g.Distance = hnsw.CosineDistance
	g.EfSearch = x.efSearch
	return g
}

// Dimensions returns the fixed dimensionality of the index
func (x *Index) Dimensions() int {
	return x.dim
}

// Insert adds a vector under the given ID. Vectors of any other
// dimensionality are rejected, never truncated or padded.
func (x *Index) Insert(id model.MemoryID, vector []float32) error {
	if len(vector) != x.dim {
		return goerr.Wrap(model.ErrDimensionMismatch, "cannot insert vector",
			goerr.V("id", id),
			goerr.V("expected", x.dim),
			goerr.V("actual", len(vector)))
	}

	owned := make([]float32, len(vector))
	copy(owned, vector)

	x.mu.Lock()
	defer x.mu.Unlock()

	// the graph rejects duplicate keys; replace rather than re-add
	if _, ok := x.vectors[id]; ok {
		x.graph.Delete(id)
	}
	x.graph.Add(hnsw.MakeNode(id, owned))
	x.vectors[id] = owned
	delete(x.tombstones, id)

	return nil
}

// Delete tombstones the entry. The vector stays in backing storage until
// Compact runs; queries exclude it immediately.
func (x *Index) Delete(id model.MemoryID) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.vectors[id]; ok {
		x.tombstones[id] = struct{}{}
	}
}

// Query returns up to k live entries ordered by descending cosine
// similarity, ties broken by lower memory ID. An empty index returns an
// empty result, not an error.
func (x *Index) Query(vector []float32, k int) ([]Match, error) {
	if len(vector) != x.dim {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "cannot query vector",
			goerr.V("expected", x.dim),
			goerr.V("actual", len(vector)))
	}
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	live := len(x.vectors) - len(x.tombstones)
	if live <= 0 {
		return nil, nil
	}

	// Widen the graph search so tombstoned neighbors cannot crowd out live
	// ones before filtering.
	breadth := k + len(x.tombstones)
	if breadth > len(x.vectors) {
		breadth = len(x.vectors)
	}

	nodes := x.graph.Search(vector, breadth)

	matches := make([]Match, 0, len(nodes))
	for _, node := range nodes {
		if _, dead := x.tombstones[node.Key]; dead {
			continue
		}
		stored, ok := x.vectors[node.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{
			ID:         node.Key,
			Similarity: cosineSimilarity(vector, stored),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Compact physically removes tombstoned entries and rebuilds the graph. It
// holds the write lock for the whole rebuild, so concurrent queries either
// wait or observe the pre-compaction state.
func (x *Index) Compact() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := len(x.tombstones)
	if removed == 0 {
		return 0
	}

	graph := x.newGraph()
	for id := range x.tombstones {
		delete(x.vectors, id)
	}
	for id, vec := range x.vectors {
		graph.Add(hnsw.MakeNode(id, vec))
	}

	x.graph = graph
	x.tombstones = make(map[model.MemoryID]struct{})

	return removed
}

// Contains reports whether the ID is present and not tombstoned
func (x *Index) Contains(id model.MemoryID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if _, dead := x.tombstones[id]; dead {
		return false
	}
	_, ok := x.vectors[id]
	return ok
}

// Live returns the number of non-tombstoned entries
func (x *Index) Live() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors) - len(x.tombstones)
}

// Tombstoned returns the number of entries awaiting compaction
func (x *Index) Tombstoned() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.tombstones)
}

// cosineSimilarity compares vectors directionally; embedding magnitudes are
// not meaningful for this domain.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
