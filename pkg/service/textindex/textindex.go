package textindex

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/model"
)

// Match is a single keyword query hit. Score is a term-relevance score where
// higher means more relevant.
type Match struct {
	ID    model.MemoryID
	Score float64
}

// Index is the keyword/full-text side of hybrid retrieval. Deletes are
// tombstoned until Compact, mirroring the vector index's lifecycle.
type Index interface {
	Insert(ctx context.Context, id model.MemoryID, text string) error
	Delete(ctx context.Context, id model.MemoryID) error
	Query(ctx context.Context, text string, k int) ([]Match, error)
	Compact(ctx context.Context) (int, error)
	Close() error
}
