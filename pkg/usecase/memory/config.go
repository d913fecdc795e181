package memory

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/service/embedqueue"
	"gopkg.in/yaml.v3"
)

// Weights are the composite score coefficients. They are tunable so the
// accuracy profile can change without code changes.
type Weights struct {
	Similarity float64 `yaml:"similarity"`
	Keyword    float64 `yaml:"keyword"`
	Recency    float64 `yaml:"recency"`
	Importance float64 `yaml:"importance"`
}

// QueueConfig tunes the embedding batch processor, in YAML-friendly units
type QueueConfig struct {
	BatchSize              int `yaml:"batch_size"`
	FlushIntervalMillis    int `yaml:"flush_interval_ms"`
	MaxRetries             int `yaml:"max_retries"`
	BaseBackoffMillis      int `yaml:"base_backoff_ms"`
	ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds"`
}

// Config tunes the retrieval engine. Zero values fall back to the documented
// defaults.
type Config struct {
	// Dimensions is the fixed dimensionality of the vector index
	Dimensions int `yaml:"dimensions"`
	// EfSearch is the HNSW search breadth: the accuracy/speed knob
	EfSearch int `yaml:"ef_search"`

	Weights Weights `yaml:"weights"`

	// RecencyHalfLifeDays controls the rerank recency decay
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`

	// Candidate inflation: both indexes are queried with
	// max(k*CandidateMultiplier, CandidateFloor) candidates before reranking
	CandidateMultiplier int `yaml:"candidate_multiplier"`
	CandidateFloor      int `yaml:"candidate_floor"`

	CacheSize       int `yaml:"cache_size"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	Queue QueueConfig `yaml:"queue"`

	// Maintenance: DecayHalfLifeDays drives the stored decay factor by age
	// since last access; memories whose effective importance drops below
	// ArchiveThreshold are archived.
	DecayHalfLifeDays float64 `yaml:"decay_half_life_days"`
	ArchiveThreshold  float64 `yaml:"archive_threshold"`

	// MaxMemories caps live (non-archived) memories; 0 means unlimited
	MaxMemories int `yaml:"max_memories"`

	WorkingMemoryTurns int `yaml:"working_memory_turns"`
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Dimensions: 768,
		EfSearch:   64,
		Weights: Weights{
			Similarity: 0.5,
			Keyword:    0.3,
			Recency:    0.1,
			Importance: 0.1,
		},
		RecencyHalfLifeDays: 7,
		CandidateMultiplier: 2,
		CandidateFloor:      10,
		CacheSize:           128,
		CacheTTLSeconds:     300,
		Queue: QueueConfig{
			BatchSize:              32,
			FlushIntervalMillis:    2000,
			MaxRetries:             3,
			BaseBackoffMillis:      500,
			ProviderTimeoutSeconds: 30,
		},
		DecayHalfLifeDays:  30,
		ArchiveThreshold:   0.2,
		MaxMemories:        0,
		WorkingMemoryTurns: 20,
	}
}

// LoadConfigFile reads a YAML tuning file over the defaults
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Dimensions <= 0 {
		c.Dimensions = def.Dimensions
	}
	if c.EfSearch <= 0 {
		c.EfSearch = def.EfSearch
	}
	zero := Weights{}
	if c.Weights == zero {
		c.Weights = def.Weights
	}
	if c.RecencyHalfLifeDays <= 0 {
		c.RecencyHalfLifeDays = def.RecencyHalfLifeDays
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = def.CandidateMultiplier
	}
	if c.CandidateFloor <= 0 {
		c.CandidateFloor = def.CandidateFloor
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = def.CacheTTLSeconds
	}
	if c.DecayHalfLifeDays <= 0 {
		c.DecayHalfLifeDays = def.DecayHalfLifeDays
	}
	if c.ArchiveThreshold <= 0 {
		c.ArchiveThreshold = def.ArchiveThreshold
	}
	if c.MaxMemories < 0 {
		c.MaxMemories = 0
	}
	if c.WorkingMemoryTurns <= 0 {
		c.WorkingMemoryTurns = def.WorkingMemoryTurns
	}
	return c
}

// CacheTTL returns the cache TTL as a duration
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// QueueConfig converts the YAML units into the queue's config
func (c Config) QueueConfig() embedqueue.Config {
	return embedqueue.Config{
		BatchSize:       c.Queue.BatchSize,
		FlushInterval:   time.Duration(c.Queue.FlushIntervalMillis) * time.Millisecond,
		MaxRetries:      c.Queue.MaxRetries,
		BaseBackoff:     time.Duration(c.Queue.BaseBackoffMillis) * time.Millisecond,
		ProviderTimeout: time.Duration(c.Queue.ProviderTimeoutSeconds) * time.Second,
	}
}

// CandidateCount returns the inflated per-index candidate count for a
// requested k
func (c Config) CandidateCount(k int) int {
	n := k * c.CandidateMultiplier
	if n < c.CandidateFloor {
		n = c.CandidateFloor
	}
	return n
}
