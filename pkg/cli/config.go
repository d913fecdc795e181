package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/policy"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/service/textindex"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel string

	// Engine tuning
	configFile string

	// Storage
	database  string
	textIndex string
	policyDir string

	// Embedding provider
	embedder       string
	geminiProject  string
	geminiLocation string
	embeddingModel string
	openaiAPIKey   string
	dimensions     int64
	embedCacheSize int64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KIOKU_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML engine tuning file (weights, cache, queue, decay)",
			Sources:     cli.EnvVars("KIOKU_CONFIG"),
			Destination: &cfg.configFile,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Repository DSN: SQLite file path, firestore://<project>/<database>, or mem://",
			Value:       "kioku.db",
			Sources:     cli.EnvVars("KIOKU_DATABASE"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "text-index",
			Usage:       "Path to the SQLite FTS5 keyword index",
			Value:       "kioku-fts.db",
			Sources:     cli.EnvVars("KIOKU_TEXT_INDEX"),
			Destination: &cfg.textIndex,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies for memory admission and importance",
			Sources:     cli.EnvVars("KIOKU_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// embedderFlags returns flags for embedding provider configuration
func embedderFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding provider (gemini, openai)",
			Value:       "gemini",
			Sources:     cli.EnvVars("KIOKU_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name (provider-specific default when empty)",
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "dimensions",
			Usage:       "Embedding dimensionality (overrides the config file)",
			Sources:     cli.EnvVars("KIOKU_DIMENSIONS"),
			Destination: &cfg.dimensions,
		},
		&cli.IntFlag{
			Name:        "embed-cache-size",
			Usage:       "Max memoized query embeddings",
			Value:       1024,
			Sources:     cli.EnvVars("KIOKU_EMBED_CACHE_SIZE"),
			Destination: &cfg.embedCacheSize,
		},
	}
}

// setupLogging installs the configured logger as default and into the context
func (cfg *config) setupLogging(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// engineConfig resolves the engine tuning: defaults, optional YAML file,
// then flag overrides.
func (cfg *config) engineConfig() (memory.Config, error) {
	engineCfg := memory.DefaultConfig()

	if cfg.configFile != "" {
		loaded, err := memory.LoadConfigFile(cfg.configFile)
		if err != nil {
			return engineCfg, err
		}
		engineCfg = loaded
	}

	if cfg.dimensions > 0 {
		engineCfg.Dimensions = int(cfg.dimensions)
	}

	return engineCfg, nil
}

// newRepository creates the persistence collaborator
func (cfg *config) newRepository(ctx context.Context) (interfaces.Repository, error) {
	repo, err := repository.New(ctx, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newEmbedder creates the configured embedding provider wrapped with a
// memoization cache
func (cfg *config) newEmbedder(ctx context.Context, dimensions int) (adapter.Embedder, error) {
	var inner adapter.Embedder

	switch cfg.embedder {
	case "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		opts := []adapter.GeminiOption{adapter.WithDimensions(dimensions)}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
		}
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
		if err != nil {
			return nil, err
		}
		inner = gemini

	case "openai":
		opts := []adapter.OpenAIOption{adapter.WithOpenAIDimensions(dimensions)}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithOpenAIEmbeddingModel(cfg.embeddingModel))
		}
		openai, err := adapter.NewOpenAI(cfg.openaiAPIKey, opts...)
		if err != nil {
			return nil, err
		}
		inner = openai

	default:
		return nil, goerr.New("unknown embedder", goerr.V("embedder", cfg.embedder))
	}

	cached, err := adapter.NewCachedEmbedder(inner, cfg.embedCacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// newEngine wires and loads the full memory engine. The returned closer
// drains the queue and releases all collaborators.
func (cfg *config) newEngine(ctx context.Context) (*memory.UseCase, func(), error) {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return nil, nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	tindex, err := textindex.NewSQLite(cfg.textIndex)
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	embedder, err := cfg.newEmbedder(ctx, engineCfg.Dimensions)
	if err != nil {
		_ = tindex.Close()
		_ = repo.Close()
		return nil, nil, err
	}

	evaluator, err := policy.New(ctx, cfg.policyDir)
	if err != nil {
		_ = tindex.Close()
		_ = repo.Close()
		return nil, nil, err
	}

	engine, err := memory.New(ctx, memory.NewInput{
		Repo:      repo,
		Embedder:  embedder,
		TextIndex: tindex,
		Policy:    evaluator,
		Config:    engineCfg,
	})
	if err != nil {
		_ = tindex.Close()
		_ = repo.Close()
		return nil, nil, err
	}

	if err := engine.Load(ctx); err != nil {
		_ = engine.Close()
		return nil, nil, goerr.Wrap(err, "failed to load memory engine")
	}

	closer := func() {
		if err := engine.Close(); err != nil {
			logging.From(ctx).Warn("failed to close memory engine", "error", err)
		}
		if c, ok := embedder.(*adapter.CachedEmbedder); ok {
			c.Close()
		}
	}

	return engine, closer, nil
}

// newStorage creates the export/import destination for a URI: gs://bucket/…
// goes to Cloud Storage, anything else is a local path.
func (cfg *config) newStorage(ctx context.Context, uri string) (adapter.Storage, string, error) {
	bucket, key := adapter.ParseStorageURI(uri)
	if bucket == "" {
		storage, err := adapter.NewLocalStorage(".")
		if err != nil {
			return nil, "", err
		}
		return storage, key, nil
	}

	storage, err := adapter.NewStorage(ctx, bucket)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to create storage")
	}
	return storage, key, nil
}
