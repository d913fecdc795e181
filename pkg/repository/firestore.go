package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const memoryCollection = "memories"

// firestoreRepo implements Repository using Firestore. Embeddings are stored
// as Vector32 fields.
type firestoreRepo struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (interfaces.Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	return &firestoreRepo{client: client}, nil
}

// memoryDoc is the Firestore document shape for a memory
type memoryDoc struct {
	ID             string             `firestore:"id"`
	Content        string             `firestore:"content"`
	Type           string             `firestore:"type"`
	Source         string             `firestore:"source"`
	Tags           []string           `firestore:"tags"`
	Metadata       map[string]string  `firestore:"metadata"`
	Importance     float64            `firestore:"importance"`
	DecayFactor    float64            `firestore:"decay_factor"`
	Embedding      firestore.Vector32 `firestore:"embedding"`
	VectorState    string             `firestore:"vector_state"`
	Archived       bool               `firestore:"archived"`
	CreatedAt      time.Time          `firestore:"created_at"`
	LastAccessedAt time.Time          `firestore:"last_accessed_at"`
	AccessCount    int64              `firestore:"access_count"`
}

func toDoc(m *model.Memory) *memoryDoc {
	return &memoryDoc{
		ID:             string(m.ID),
		Content:        m.Content,
		Type:           string(m.Type),
		Source:         m.Source,
		Tags:           m.Tags,
		Metadata:       m.Metadata,
		Importance:     m.Importance,
		DecayFactor:    m.DecayFactor,
		Embedding:      firestore.Vector32(m.Embedding),
		VectorState:    string(m.VectorState),
		Archived:       m.Archived,
		CreatedAt:      m.CreatedAt,
		LastAccessedAt: m.LastAccessedAt,
		AccessCount:    m.AccessCount,
	}
}

func (d *memoryDoc) toModel() *model.Memory {
	return &model.Memory{
		ID:             model.MemoryID(d.ID),
		Content:        d.Content,
		Type:           model.MemoryType(d.Type),
		Source:         d.Source,
		Tags:           d.Tags,
		Metadata:       d.Metadata,
		Importance:     d.Importance,
		DecayFactor:    d.DecayFactor,
		Embedding:      []float32(d.Embedding),
		VectorState:    model.VectorState(d.VectorState),
		Archived:       d.Archived,
		CreatedAt:      d.CreatedAt,
		LastAccessedAt: d.LastAccessedAt,
		AccessCount:    d.AccessCount,
	}
}

func (r *firestoreRepo) PutMemory(ctx context.Context, memory *model.Memory) error {
	_, err := r.client.Collection(memoryCollection).Doc(string(memory.ID)).Set(ctx, toDoc(memory))
	if err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("id", memory.ID))
	}
	return nil
}

func (r *firestoreRepo) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	snap, err := r.client.Collection(memoryCollection).Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}

	var doc memoryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory document", goerr.V("id", id))
	}
	return doc.toModel(), nil
}

func (r *firestoreRepo) ListMemories(ctx context.Context, filters ...interfaces.Filter) ([]*model.Memory, error) {
	iter := r.client.Collection(memoryCollection).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*model.Memory
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories")
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory document", goerr.V("doc", snap.Ref.ID))
		}
		m := doc.toModel()

		match := true
		for _, f := range filters {
			if !f(m) {
				match = false
				break
			}
		}
		if match {
			out = append(out, m)
		}
	}

	return out, nil
}

func (r *firestoreRepo) UpdateMemory(ctx context.Context, memory *model.Memory) error {
	return r.PutMemory(ctx, memory)
}

func (r *firestoreRepo) PutVector(ctx context.Context, id model.MemoryID, vector []float32, state model.VectorState) error {
	_, err := r.client.Collection(memoryCollection).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "embedding", Value: firestore.Vector32(vector)},
		{Path: "vector_state", Value: string(state)},
	})
	if status.Code(err) == codes.NotFound {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot store vector for missing memory", goerr.V("id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to put vector", goerr.V("id", id))
	}
	return nil
}

func (r *firestoreRepo) DeleteMemory(ctx context.Context, id model.MemoryID) error {
	_, err := r.client.Collection(memoryCollection).Doc(string(id)).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound || status.Code(err) == codes.FailedPrecondition {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot delete missing memory", goerr.V("id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to delete memory", goerr.V("id", id))
	}
	return nil
}

func (r *firestoreRepo) CountMemories(ctx context.Context) (int, error) {
	iter := r.client.Collection(memoryCollection).Where("archived", "==", false).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count memories")
		}
		count++
	}
	return count, nil
}

func (r *firestoreRepo) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}
