package interfaces

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/model"
)

// Filter is a function to filter memories in list operations
type Filter func(*model.Memory) bool

// Repository defines the interface for memory data persistence. The engine
// calls it synchronously on every mutation and propagates failures to the
// write caller; a failed write is rolled back in memory, never silently
// dropped.
type Repository interface {
	// PutMemory saves a new memory record
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a memory by ID. Returns model.ErrMemoryNotFound
	// when no record exists.
	GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// ListMemories retrieves memories with optional filters, used to rebuild
	// the indexes at startup
	ListMemories(ctx context.Context, filters ...Filter) ([]*model.Memory, error)

	// UpdateMemory updates an existing memory record
	UpdateMemory(ctx context.Context, memory *model.Memory) error

	// PutVector stores the embedding for an already-persisted memory and
	// marks its vector state
	PutVector(ctx context.Context, id model.MemoryID, vector []float32, state model.VectorState) error

	// DeleteMemory removes a memory record durably
	DeleteMemory(ctx context.Context, id model.MemoryID) error

	// CountMemories returns the number of non-archived records
	CountMemories(ctx context.Context) (int, error)

	// Close releases underlying resources
	Close() error
}
