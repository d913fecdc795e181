package memory

import (
	"sort"
	"time"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/service/textindex"
	"github.com/m-mizutani/kioku/pkg/service/vectorindex"
)

type candidate struct {
	id         model.MemoryID
	similarity float64
	keyword    float64
	inVector   bool
	inKeyword  bool
}

// rerank merges the two candidate sets into one ranked list. Each raw
// sub-score is min-max normalized within its own candidate set; items found
// by both indexes accumulate both normalized sub-scores. The composite is a
// configured weighted sum of similarity, keyword relevance, recency and
// effective importance. Ties break on higher importance, then lower ID, so
// the ordering never depends on map iteration order.
func (u *UseCase) rerank(now time.Time, vecMatches []vectorindex.Match, kwMatches []textindex.Match, filters Filters) []*model.RankedResult {
	merged := make(map[model.MemoryID]*candidate, len(vecMatches)+len(kwMatches))

	vecNorm := normalizeVector(vecMatches)
	for i, m := range vecMatches {
		merged[m.ID] = &candidate{
			id:         m.ID,
			similarity: vecNorm[i],
			inVector:   true,
		}
	}

	kwNorm := normalizeKeyword(kwMatches)
	for i, m := range kwMatches {
		if c, ok := merged[m.ID]; ok {
			c.keyword = kwNorm[i]
			c.inKeyword = true
			continue
		}
		merged[m.ID] = &candidate{
			id:        m.ID,
			keyword:   kwNorm[i],
			inKeyword: true,
		}
	}

	u.mu.RLock()
	type scored struct {
		result     *model.RankedResult
		importance float64
	}
	results := make([]scored, 0, len(merged))
	for id, c := range merged {
		m, ok := u.items[id]
		if !ok || m.Archived || !filters.match(m) {
			continue
		}

		sub := model.SubScores{
			Similarity: c.similarity,
			Keyword:    c.keyword,
			Recency:    m.Recency(now, u.cfg.RecencyHalfLifeDays),
			Importance: m.EffectiveImportance(),
		}

		w := u.cfg.Weights
		composite := w.Similarity*sub.Similarity +
			w.Keyword*sub.Keyword +
			w.Recency*sub.Recency +
			w.Importance*sub.Importance

		source := model.SourceBoth
		switch {
		case c.inVector && !c.inKeyword:
			source = model.SourceVector
		case c.inKeyword && !c.inVector:
			source = model.SourceKeyword
		}

		results = append(results, scored{
			result: &model.RankedResult{
				ID:        id,
				Score:     composite,
				SubScores: sub,
				Source:    source,
			},
			importance: sub.Importance,
		})
	}
	u.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].result.Score != results[j].result.Score {
			return results[i].result.Score > results[j].result.Score
		}
		if results[i].importance != results[j].importance {
			return results[i].importance > results[j].importance
		}
		return results[i].result.ID < results[j].result.ID
	})

	out := make([]*model.RankedResult, len(results))
	for i, s := range results {
		out[i] = s.result
	}
	return out
}

// normalizeVector min-max normalizes similarities into [0,1]. A set with one
// element or zero range normalizes to 1.0 for all members.
func normalizeVector(matches []vectorindex.Match) []float64 {
	raw := make([]float64, len(matches))
	for i, m := range matches {
		raw[i] = m.Similarity
	}
	return minMax(raw)
}

func normalizeKeyword(matches []textindex.Match) []float64 {
	raw := make([]float64, len(matches))
	for i, m := range matches {
		raw[i] = m.Score
	}
	return minMax(raw)
}

func minMax(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}

	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(raw))
	if hi == lo {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}

	for i, v := range raw {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
