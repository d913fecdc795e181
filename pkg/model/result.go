package model

// RetrievalSource identifies which index produced a candidate
type RetrievalSource string

const (
	SourceVector  RetrievalSource = "vector"
	SourceKeyword RetrievalSource = "keyword"
	SourceBoth    RetrievalSource = "both"
)

// RetrievalStrategy names the path a retrieval took, for observability
type RetrievalStrategy string

const (
	StrategyHybrid  RetrievalStrategy = "hybrid"
	StrategyKeyword RetrievalStrategy = "keyword"
	StrategyVector  RetrievalStrategy = "vector"
	StrategyCache   RetrievalStrategy = "cache"
)

// SubScores keeps the normalized contributions to a composite score so that
// ranking decisions stay explainable and testable.
type SubScores struct {
	Similarity float64
	Keyword    float64
	Recency    float64
	Importance float64
}

// RankedResult is a single reranked retrieval hit
type RankedResult struct {
	ID        MemoryID
	Score     float64
	SubScores SubScores
	Source    RetrievalSource
}

// RetrievalResult is the full answer to a retrieve call, including metadata
// about how the answer was produced.
type RetrievalResult struct {
	Query            string
	Strategy         RetrievalStrategy
	Results          []*RankedResult
	TotalCandidates  int
	ElapsedMillis    int64
	NoRelevantMemory bool
}
