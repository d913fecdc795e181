package memory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/service/textindex"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
)

// semanticVectors places paraphrases near each other and distractors on
// other axes, so vector hits do not depend on shared keywords.
func semanticVectors() map[string][]float32 {
	return map[string][]float32{
		"the cat sat on the mat":               {1, 0, 0},
		"feline on a rug":                      {0.97, 0.15, 0},
		"finished the quarterly finance report": {0, 1, 0},
		"watered every plant in the garden":    {0, 0, 1},
	}
}

func TestRetrieveSemanticMatch(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, nil, newMockEmbedder(3, semanticVectors()), fastConfig())

	cat, err := engine.Write(ctx, memory.WriteInput{Content: "the cat sat on the mat"})
	gt.NoError(t, err)
	_, err = engine.Write(ctx, memory.WriteInput{Content: "finished the quarterly finance report"})
	gt.NoError(t, err)
	_, err = engine.Write(ctx, memory.WriteInput{Content: "watered every plant in the garden"})
	gt.NoError(t, err)

	waitForState(t, engine, model.VectorStateIndexed, 3)

	// no keyword overlap beyond stopwords; the vector index must carry this
	result, err := engine.Retrieve(ctx, "feline on a rug", 2, memory.Filters{})
	gt.NoError(t, err)

	gt.V(t, result.Strategy).Equal(model.StrategyHybrid)
	gt.False(t, result.NoRelevantMemory)
	gt.True(t, len(result.Results) >= 1)
	gt.V(t, result.Results[0].ID).Equal(cat.ID)
	gt.True(t, result.TotalCandidates > 0)
}

func TestRetrieveKeywordOnlyDegradation(t *testing.T) {
	ctx := context.Background()
	embedder := newMockEmbedder(3, nil)
	engine := newTestEngine(t, nil, embedder, fastConfig())

	m, err := engine.Write(ctx, memory.WriteInput{Content: "order #48213 shipped to the customer"})
	gt.NoError(t, err)
	_, err = engine.Write(ctx, memory.WriteInput{Content: "a completely unrelated gardening note"})
	gt.NoError(t, err)

	waitForState(t, engine, model.VectorStateIndexed, 2)

	// the provider goes down: reads must degrade, not fail
	embedder.fail.Store(true)
	defer embedder.fail.Store(false)

	result, err := engine.Retrieve(ctx, "order #48213", 5, memory.Filters{})
	gt.NoError(t, err)

	gt.V(t, result.Strategy).Equal(model.StrategyKeyword)
	gt.True(t, len(result.Results) >= 1)
	gt.V(t, result.Results[0].ID).Equal(m.ID)
	gt.V(t, result.Results[0].Source).Equal(model.SourceKeyword)
}

func TestRetrieveCache(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, nil, newMockEmbedder(3, semanticVectors()), fastConfig())

	cat, err := engine.Write(ctx, memory.WriteInput{Content: "the cat sat on the mat"})
	gt.NoError(t, err)
	waitForState(t, engine, model.VectorStateIndexed, 1)

	first, err := engine.Retrieve(ctx, "feline on a rug", 3, memory.Filters{})
	gt.NoError(t, err)
	gt.V(t, first.Strategy).Equal(model.StrategyHybrid)

	t.Run("identical query hits the cache with identical results", func(t *testing.T) {
		second, err := engine.Retrieve(ctx, "feline on a rug", 3, memory.Filters{})
		gt.NoError(t, err)
		gt.V(t, second.Strategy).Equal(model.StrategyCache)
		gt.V(t, len(second.Results)).Equal(len(first.Results))
		for i := range first.Results {
			gt.V(t, second.Results[i].ID).Equal(first.Results[i].ID)
			gt.V(t, second.Results[i].Score).Equal(first.Results[i].Score)
			gt.V(t, second.Results[i].SubScores).Equal(first.Results[i].SubScores)
		}
	})

	t.Run("normalized query variants share the slot", func(t *testing.T) {
		result, err := engine.Retrieve(ctx, "  FELINE   on a RUG ", 3, memory.Filters{})
		gt.NoError(t, err)
		gt.V(t, result.Strategy).Equal(model.StrategyCache)
	})

	t.Run("different k misses the cache", func(t *testing.T) {
		result, err := engine.Retrieve(ctx, "feline on a rug", 4, memory.Filters{})
		gt.NoError(t, err)
		gt.V(t, result.Strategy).Equal(model.StrategyHybrid)
	})

	t.Run("forgetting a cached memory invalidates its entries", func(t *testing.T) {
		gt.NoError(t, engine.Forget(ctx, cat.ID))

		result, err := engine.Retrieve(ctx, "feline on a rug", 3, memory.Filters{})
		gt.NoError(t, err)
		gt.V(t, result.Strategy == model.StrategyCache).Equal(false)
		for _, r := range result.Results {
			gt.V(t, r.ID == cat.ID).Equal(false)
		}
	})
}

func TestRetrieveFilters(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, nil, newMockEmbedder(3, nil), fastConfig())

	fact, err := engine.Write(ctx, memory.WriteInput{
		Content: "deployment checklist lives in the wiki",
		Type:    model.MemoryTypeFact,
		Source:  "docs",
		Tags:    []string{"ops"},
	})
	gt.NoError(t, err)
	_, err = engine.Write(ctx, memory.WriteInput{
		Content: "deployment went smoothly this afternoon",
		Type:    model.MemoryTypeEpisode,
		Source:  "chat",
	})
	gt.NoError(t, err)

	waitForState(t, engine, model.VectorStateIndexed, 2)

	t.Run("type filter", func(t *testing.T) {
		result, err := engine.Retrieve(ctx, "deployment", 5, memory.Filters{Type: model.MemoryTypeFact})
		gt.NoError(t, err)
		gt.V(t, len(result.Results)).Equal(1)
		gt.V(t, result.Results[0].ID).Equal(fact.ID)
	})

	t.Run("tag filter", func(t *testing.T) {
		result, err := engine.Retrieve(ctx, "deployment", 5, memory.Filters{Tags: []string{"ops"}})
		gt.NoError(t, err)
		gt.V(t, len(result.Results)).Equal(1)
		gt.V(t, result.Results[0].ID).Equal(fact.ID)
	})

	t.Run("source filter excludes everything else", func(t *testing.T) {
		result, err := engine.Retrieve(ctx, "deployment", 5, memory.Filters{Source: "nowhere"})
		gt.NoError(t, err)
		gt.True(t, result.NoRelevantMemory)
	})

	t.Run("time window filter", func(t *testing.T) {
		window := model.TimeWindow{
			From: time.Now().Add(-time.Hour),
			To:   time.Now().Add(time.Hour),
		}
		result, err := engine.Retrieve(ctx, "deployment", 5, memory.Filters{Window: &window})
		gt.NoError(t, err)
		gt.V(t, len(result.Results)).Equal(2)

		past := model.TimeWindow{
			From: time.Now().Add(-2 * time.Hour),
			To:   time.Now().Add(-time.Hour),
		}
		result, err = engine.Retrieve(ctx, "deployment", 5, memory.Filters{Window: &past})
		gt.NoError(t, err)
		gt.True(t, result.NoRelevantMemory)
	})
}

func TestRetrieveRankingProperties(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, nil, newMockEmbedder(3, nil), fastConfig())

	contents := []string{
		"kubernetes cluster upgrade completed without downtime",
		"kubernetes node pool resized for the batch jobs",
		"database migration script reviewed and merged",
		"the kubernetes dashboard shows all pods healthy",
	}
	for _, c := range contents {
		_, err := engine.Write(ctx, memory.WriteInput{Content: c})
		gt.NoError(t, err)
	}
	waitForState(t, engine, model.VectorStateIndexed, len(contents))

	result, err := engine.Retrieve(ctx, "kubernetes upgrade", 3, memory.Filters{})
	gt.NoError(t, err)

	t.Run("truncated to k", func(t *testing.T) {
		gt.True(t, len(result.Results) <= 3)
	})

	t.Run("scores are descending", func(t *testing.T) {
		for i := 1; i < len(result.Results); i++ {
			gt.True(t, result.Results[i-1].Score >= result.Results[i].Score)
		}
	})

	t.Run("sub-scores stay in the unit interval", func(t *testing.T) {
		for _, r := range result.Results {
			gt.True(t, r.SubScores.Similarity >= 0 && r.SubScores.Similarity <= 1)
			gt.True(t, r.SubScores.Keyword >= 0 && r.SubScores.Keyword <= 1)
			gt.True(t, r.SubScores.Recency >= 0 && r.SubScores.Recency <= 1)
			gt.True(t, r.SubScores.Importance >= 0 && r.SubScores.Importance <= 1)
		}
	})

	t.Run("composite stays within [0,1]", func(t *testing.T) {
		for _, r := range result.Results {
			gt.True(t, r.Score >= 0 && r.Score <= 1)
		}
	})
}

func TestRetrieveTouchesResults(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, nil, newMockEmbedder(3, nil), fastConfig())

	m, err := engine.Write(ctx, memory.WriteInput{Content: "touched memories track access"})
	gt.NoError(t, err)
	waitForState(t, engine, model.VectorStateIndexed, 1)

	result, err := engine.Retrieve(ctx, "touched memories", 5, memory.Filters{})
	gt.NoError(t, err)
	gt.True(t, len(result.Results) >= 1)

	got, err := engine.Get(ctx, m.ID)
	gt.NoError(t, err)
	gt.V(t, got.AccessCount).Equal(int64(1))
}

func TestRetrieveBeforeLoad(t *testing.T) {
	ctx := context.Background()

	tindex, err := textindex.NewSQLite(filepath.Join(t.TempDir(), "fts.db"))
	gt.NoError(t, err)

	engine, err := memory.New(ctx, memory.NewInput{
		Repo:      repository.NewMemory(),
		Embedder:  newMockEmbedder(3, nil),
		TextIndex: tindex,
		Config:    fastConfig(),
	})
	gt.NoError(t, err)
	defer engine.Close()

	// no Load yet: degrade to an empty result, never an error
	result, err := engine.Retrieve(ctx, "anything at all", 5, memory.Filters{})
	gt.NoError(t, err)
	gt.True(t, result.NoRelevantMemory)
	gt.V(t, len(result.Results)).Equal(0)
}

func TestRetrieveDefaultLimit(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, nil, newMockEmbedder(3, nil), fastConfig())

	for i := 0; i < 8; i++ {
		_, err := engine.Write(ctx, memory.WriteInput{
			Content: "shared subject line variant number " + string(rune('a'+i)),
		})
		gt.NoError(t, err)
	}
	waitForState(t, engine, model.VectorStateIndexed, 8)

	result, err := engine.Retrieve(ctx, "shared subject line", 0, memory.Filters{})
	gt.NoError(t, err)
	gt.V(t, len(result.Results)).Equal(5)
}
