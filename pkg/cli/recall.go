package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func recallCommand() *cli.Command {
	var (
		cfg     config
		limit   int64
		memType string
		source  string
		tags    []string
		window  string
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of memories to return",
			Value:       5,
			Sources:     cli.EnvVars("KIOKU_RECALL_LIMIT"),
			Destination: &limit,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Filter by memory type",
			Destination: &memType,
		},
		&cli.StringFlag{
			Name:        "source",
			Aliases:     []string{"s"},
			Usage:       "Filter by source tag",
			Destination: &source,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Usage:       "Filter by tags (all must match)",
			Destination: &tags,
		},
		&cli.StringFlag{
			Name:        "window",
			Aliases:     []string{"w"},
			Usage:       "Time window filter (today, yesterday, this_week, recent)",
			Destination: &window,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Retrieve memories by hybrid vector and keyword search",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			query := c.Args().First()
			if query == "" {
				return errors.New("query argument is required")
			}

			filters, err := buildFilters(memType, source, tags, window)
			if err != nil {
				return err
			}

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			result, err := engine.Retrieve(ctx, query, int(limit), filters)
			if err != nil {
				return err
			}

			printRetrieval(ctx, c.Root().Writer, engine, result)
			return nil
		},
	}
}

func buildFilters(memType, source string, tags []string, window string) (memory.Filters, error) {
	filters := memory.Filters{
		Type:   model.MemoryType(memType),
		Source: source,
		Tags:   tags,
	}
	if filters.Type != "" {
		if err := filters.Type.Validate(); err != nil {
			return filters, err
		}
	}
	if window != "" {
		w, err := model.NewTimeWindow(window, time.Now())
		if err != nil {
			return filters, goerr.Wrap(err, "invalid window filter")
		}
		filters.Window = &w
	}
	return filters, nil
}

func printRetrieval(ctx context.Context, w io.Writer, engine *memory.UseCase, result *model.RetrievalResult) {
	if result.NoRelevantMemory {
		fmt.Fprintf(w, "No relevant memories found\n")
		return
	}

	for i, r := range result.Results {
		m, err := engine.Get(ctx, r.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, m.ID.Short(), m.Content)
		fmt.Fprintf(w, "   score=%.3f (sim=%.2f kw=%.2f rec=%.2f imp=%.2f) source=%s type=%s\n",
			r.Score, r.SubScores.Similarity, r.SubScores.Keyword,
			r.SubScores.Recency, r.SubScores.Importance, r.Source, m.Type)
	}
	fmt.Fprintf(w, "\nstrategy=%s candidates=%d elapsed=%dms\n",
		result.Strategy, result.TotalCandidates, result.ElapsedMillis)
}
