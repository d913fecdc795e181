package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg      config
		memType  string
		source   string
		archived bool
	)

	flags := []cli.Flag{
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
		&cli.BoolFlag{
			Name:        "all",
			Aliases:     []string{"a"},
			Usage:       "Include archived memories",
			Destination: &archived,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List memories",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			memories, err := engine.List(ctx, memory.ListInput{
				Type:            model.MemoryType(memType),
				Source:          source,
				IncludeArchived: archived,
			})
			if err != nil {
				return err
			}

			if len(memories) == 0 {
				fmt.Fprintf(c.Root().Writer, "No memories\n")
				return nil
			}

			fmt.Fprint(c.Root().Writer, model.FormatMemoryIndex(memories, time.Now()))
			return nil
		},
	}
}
