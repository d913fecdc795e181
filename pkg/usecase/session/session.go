package session

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
)

// Session assembles grounding context for one conversation: a bounded
// working memory of recent turns plus a long-term memory index block
// retrieved per query. It does not talk to any LLM; it only prepares the
// prompt-facing material.
type Session struct {
	engine  *memory.UseCase
	working *model.WorkingMemory
	limit   int
}

// Option is a functional option for Session
type Option func(*Session)

// WithRetrieveLimit sets how many memories ground each query
func WithRetrieveLimit(limit int) Option {
	return func(s *Session) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithWorkingMemoryTurns bounds the retained conversation turns
func WithWorkingMemoryTurns(turns int) Option {
	return func(s *Session) {
		s.working = model.NewWorkingMemory(turns)
	}
}

const defaultRetrieveLimit = 5

// New creates a session over the memory engine
func New(engine *memory.UseCase, opts ...Option) *Session {
	s := &Session{
		engine:  engine,
		working: model.NewWorkingMemory(model.DefaultWorkingMemoryCapacity),
		limit:   defaultRetrieveLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordTurn appends a conversation turn; the oldest drops when full
func (s *Session) RecordTurn(role, content string) {
	s.working.Append(model.Turn{
		Role:    role,
		Content: content,
		At:      time.Now(),
	})
}

// Turns returns the retained conversation turns, oldest first
func (s *Session) Turns() []model.Turn {
	return s.working.Turns()
}

// GroundingContext retrieves memories relevant to the query and renders them
// with the recent turns as a prompt block.
func (s *Session) GroundingContext(ctx context.Context, query string) (string, error) {
	result, err := s.engine.Retrieve(ctx, query, s.limit, memory.Filters{})
	if err != nil {
		return "", goerr.Wrap(err, "failed to retrieve grounding memories")
	}

	var memories []*model.Memory
	for _, r := range result.Results {
		m, err := s.engine.Get(ctx, r.ID)
		if err != nil {
			continue // forgotten between rerank and render
		}
		memories = append(memories, m)
	}

	var b strings.Builder
	if len(memories) > 0 {
		b.WriteString("## Relevant memories\n")
		b.WriteString(model.FormatMemoryIndex(memories, time.Now()))
	}
	if s.working.Len() > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("## Recent conversation\n")
		b.WriteString(s.working.Format())
	}

	return b.String(), nil
}
