package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func maintainCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "maintain",
		Usage: "Run maintenance: decay importance, archive stale memories, compact indexes",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			report, err := engine.Maintain(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Decayed %d, archived %d, compacted %d vector + %d keyword entries\n",
				report.Decayed, report.Archived, report.VectorCompacted, report.TextCompacted)
			return nil
		},
	}
}
