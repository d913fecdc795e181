package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// archiveRecord is the JSONL line format for export/import
type archiveRecord struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	Type           string            `json:"type"`
	Source         string            `json:"source,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Importance     float64           `json:"importance"`
	DecayFactor    float64           `json:"decay_factor"`
	Embedding      []float32         `json:"embedding,omitempty"`
	VectorState    string            `json:"vector_state"`
	Archived       bool              `json:"archived,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	AccessCount    int64             `json:"access_count"`
}

// Export streams all memories (including vectors and archived records) as
// JSONL. Returns the number of exported records.
func (u *UseCase) Export(ctx context.Context, w io.Writer) (int, error) {
	memories, err := u.List(ctx, ListInput{IncludeArchived: true})
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, m := range memories {
		rec := archiveRecord{
			ID:             string(m.ID),
			Content:        m.Content,
			Type:           string(m.Type),
			Source:         m.Source,
			Tags:           m.Tags,
			Metadata:       m.Metadata,
			Importance:     m.Importance,
			DecayFactor:    m.DecayFactor,
			Embedding:      m.Embedding,
			VectorState:    string(m.VectorState),
			Archived:       m.Archived,
			CreatedAt:      m.CreatedAt,
			LastAccessedAt: m.LastAccessedAt,
			AccessCount:    m.AccessCount,
		}
		if err := enc.Encode(rec); err != nil {
			return 0, goerr.Wrap(err, "failed to encode memory", goerr.V("id", m.ID))
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, goerr.Wrap(err, "failed to flush export")
	}

	return len(memories), nil
}

// Import restores memories from a JSONL stream, persisting each record and
// rebuilding both indexes. Records with a usable vector go straight to the
// vector index; pending ones are re-enqueued for embedding.
func (u *UseCase) Import(ctx context.Context, r io.Reader) (int, error) {
	logger := logging.From(ctx)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec archiveRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return count, goerr.Wrap(err, "failed to decode archive line", goerr.V("line", count+1))
		}

		m := &model.Memory{
			ID:             model.MemoryID(rec.ID),
			Content:        rec.Content,
			Type:           model.MemoryType(rec.Type),
			Source:         rec.Source,
			Tags:           rec.Tags,
			Metadata:       rec.Metadata,
			Importance:     rec.Importance,
			DecayFactor:    rec.DecayFactor,
			Embedding:      rec.Embedding,
			VectorState:    model.VectorState(rec.VectorState),
			Archived:       rec.Archived,
			CreatedAt:      rec.CreatedAt,
			LastAccessedAt: rec.LastAccessedAt,
			AccessCount:    rec.AccessCount,
		}
		if err := m.Validate(); err != nil {
			return count, goerr.Wrap(err, "invalid archive record", goerr.V("line", count+1))
		}

		if err := u.repo.PutMemory(ctx, m); err != nil {
			return count, goerr.Wrap(err, "failed to persist imported memory", goerr.V("id", m.ID))
		}

		if !m.Archived {
			if err := u.tindex.Insert(ctx, m.ID, m.Content); err != nil {
				return count, goerr.Wrap(err, "failed to index imported memory", goerr.V("id", m.ID))
			}

			if m.VectorState == model.VectorStateIndexed && len(m.Embedding) == u.cfg.Dimensions {
				if err := u.vindex.Insert(m.ID, m.Embedding); err != nil {
					return count, goerr.Wrap(err, "failed to restore vector", goerr.V("id", m.ID))
				}
			} else if m.VectorState == model.VectorStatePending {
				u.queue.Enqueue(m.ID, m.Content)
			}
		}

		u.mu.Lock()
		u.items[m.ID] = m
		u.mu.Unlock()
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, goerr.Wrap(err, "failed to read archive")
	}

	u.cache.Purge()
	logger.Info("memories imported", "count", count)

	return count, nil
}
