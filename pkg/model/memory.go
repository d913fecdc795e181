package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Short returns the 8-character prefix used in prompt blocks and logs
func (id MemoryID) Short() string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

type MemoryType string

const (
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypeEpisode    MemoryType = "episode"
	MemoryTypeRelation   MemoryType = "relation"
	MemoryTypeReflection MemoryType = "reflection"
)

// Validate checks if the memory type is valid
func (t MemoryType) Validate() error {
	switch t {
	case MemoryTypeFact, MemoryTypeEpisode, MemoryTypeRelation, MemoryTypeReflection:
		return nil
	default:
		return goerr.Wrap(ErrInvalidMemoryType, "unknown memory type", goerr.V("type", t))
	}
}

// VectorState tracks embedding readiness of a memory.
// Pending: written, keyword-searchable, embedding queued.
// Indexed: vector present, fully searchable.
// Failed: embedding permanently failed, keyword-only (terminal).
type VectorState string

const (
	VectorStatePending VectorState = "pending"
	VectorStateIndexed VectorState = "indexed"
	VectorStateFailed  VectorState = "failed"
)

// Memory is a stored episodic/semantic record used to ground agent responses.
// Indexes reference memories by ID only; the coordinator owns the instances.
type Memory struct {
	ID          MemoryID
	Content     string
	Type        MemoryType
	Source      string
	Tags        []string
	Metadata    map[string]string
	Importance  float64
	DecayFactor float64
	Embedding   []float32
	VectorState VectorState
	Archived    bool

	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
}

// Validate checks the invariants that must hold before persisting
func (m *Memory) Validate() error {
	if m.ID == "" {
		return goerr.New("memory ID is empty")
	}
	if m.Content == "" {
		return goerr.New("memory content is empty", goerr.V("id", m.ID))
	}
	if err := m.Type.Validate(); err != nil {
		return err
	}
	if m.Importance < 0 || m.Importance > 1 {
		return goerr.New("importance out of range", goerr.V("id", m.ID), goerr.V("importance", m.Importance))
	}
	if m.DecayFactor <= 0 || m.DecayFactor > 1 {
		return goerr.New("decay factor out of range", goerr.V("id", m.ID), goerr.V("decay_factor", m.DecayFactor))
	}
	return nil
}

// EffectiveImportance is the importance after decay has been applied
func (m *Memory) EffectiveImportance() float64 {
	return m.Importance * m.DecayFactor
}

// Touch refreshes access tracking when the memory is returned by retrieval
func (m *Memory) Touch(now time.Time) {
	m.LastAccessedAt = now
	m.AccessCount++
}

// Recency returns exp(-ln2 * ageDays / halfLife) for the age since the last
// access, clamped to [0,1]. The half-life comes from configuration.
func (m *Memory) Recency(now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	age := now.Sub(m.LastAccessedAt)
	if age <= 0 {
		return 1.0
	}
	days := age.Hours() / 24
	return math.Exp(-math.Ln2 * days / halfLifeDays)
}

// EmbeddingJob is a unit of pending embedding work. It is created when a
// memory is written without a precomputed vector and destroyed on success or
// permanent failure.
type EmbeddingJob struct {
	MemoryID   MemoryID
	Text       string
	EnqueuedAt time.Time
	Retries    int
}
