package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "stats",
		Usage: "Show engine statistics",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			stats := engine.Stats(ctx)
			w := c.Root().Writer

			fmt.Fprintf(w, "Memories:   %d total, %d archived\n", stats.Total, stats.Archived)
			fmt.Fprintf(w, "States:     indexed=%d pending=%d failed=%d\n",
				stats.ByState[model.VectorStateIndexed],
				stats.ByState[model.VectorStatePending],
				stats.ByState[model.VectorStateFailed])
			fmt.Fprintf(w, "Types:      fact=%d episode=%d relation=%d reflection=%d\n",
				stats.ByType[model.MemoryTypeFact],
				stats.ByType[model.MemoryTypeEpisode],
				stats.ByType[model.MemoryTypeRelation],
				stats.ByType[model.MemoryTypeReflection])
			fmt.Fprintf(w, "Vector:     %d live, %d tombstoned\n", stats.VectorLive, stats.VectorTombstoned)
			fmt.Fprintf(w, "Cache:      %d entries\n", stats.CacheEntries)
			fmt.Fprintf(w, "Queue:      %d pending jobs\n", stats.QueueDepth)

			return nil
		},
	}
}
