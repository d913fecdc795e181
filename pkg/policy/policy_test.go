package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/policy"
)

func TestHeuristics(t *testing.T) {
	ctx := context.Background()
	evaluator, err := policy.New(ctx, "")
	gt.NoError(t, err)

	tests := []struct {
		name       string
		content    string
		memType    model.MemoryType
		store      bool
		importance float64
	}{
		{
			name:       "episode baseline",
			content:    "went to the store today",
			memType:    model.MemoryTypeEpisode,
			store:      true,
			importance: 0.5,
		},
		{
			name:       "facts rate higher",
			content:    "the capital of France is Paris",
			memType:    model.MemoryTypeFact,
			store:      true,
			importance: 0.7,
		},
		{
			name:       "preference statements get a boost",
			content:    "I like coffee in the morning",
			memType:    model.MemoryTypeEpisode,
			store:      true,
			importance: 0.6,
		},
		{
			name:       "identity facts get a boost",
			content:    "my name is Alex",
			memType:    model.MemoryTypeFact,
			store:      true,
			importance: 0.8,
		},
		{
			name:    "trivial content is rejected",
			content: "ok",
			memType: model.MemoryTypeEpisode,
			store:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := evaluator.Evaluate(ctx, tt.content, tt.memType, "", nil)
			gt.NoError(t, err)
			gt.V(t, decision.Store).Equal(tt.store)
			if tt.store {
				gt.V(t, decision.Importance).Equal(tt.importance)
			}
		})
	}
}

func TestRegoPolicy(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	policySrc := `package memory

default store := true

store := false if contains(lower(input.content), "secret")

importance := 0.9 if input.type == "fact"
`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "memory.rego"), []byte(policySrc), 0600))

	evaluator, err := policy.New(ctx, dir)
	gt.NoError(t, err)

	t.Run("policy can reject a write", func(t *testing.T) {
		decision, err := evaluator.Evaluate(ctx, "this contains a SECRET token", model.MemoryTypeEpisode, "", nil)
		gt.NoError(t, err)
		gt.False(t, decision.Store)
	})

	t.Run("policy can override importance", func(t *testing.T) {
		decision, err := evaluator.Evaluate(ctx, "the capital of France is Paris", model.MemoryTypeFact, "", nil)
		gt.NoError(t, err)
		gt.True(t, decision.Store)
		gt.V(t, decision.Importance).Equal(0.9)
	})

	t.Run("heuristic importance survives when policy is silent on it", func(t *testing.T) {
		decision, err := evaluator.Evaluate(ctx, "went to the store today", model.MemoryTypeEpisode, "", nil)
		gt.NoError(t, err)
		gt.True(t, decision.Store)
		gt.V(t, decision.Importance).Equal(0.5)
	})
}

func TestEmptyPolicyDir(t *testing.T) {
	ctx := context.Background()

	// A directory without .rego files falls back to heuristics
	evaluator, err := policy.New(ctx, t.TempDir())
	gt.NoError(t, err)

	decision, err := evaluator.Evaluate(ctx, "hello there world", model.MemoryTypeEpisode, "", nil)
	gt.NoError(t, err)
	gt.True(t, decision.Store)
}
