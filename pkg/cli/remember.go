package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func rememberCommand() *cli.Command {
	var (
		cfg     config
		memType string
		source  string
		tags    []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Memory type (fact, episode, relation, reflection)",
			Value:       string(model.MemoryTypeEpisode),
			Sources:     cli.EnvVars("KIOKU_MEMORY_TYPE"),
			Destination: &memType,
		},
		&cli.StringFlag{
			Name:        "source",
			Aliases:     []string{"s"},
			Usage:       "Source or category tag",
			Sources:     cli.EnvVars("KIOKU_MEMORY_SOURCE"),
			Destination: &source,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Usage:       "Free-form tags (repeatable)",
			Destination: &tags,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:      "remember",
		Usage:     "Store a new memory",
		ArgsUsage: "<content>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			content := c.Args().First()
			if content == "" {
				return errors.New("content argument is required")
			}

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			m, err := engine.Write(ctx, memory.WriteInput{
				Content: content,
				Type:    model.MemoryType(memType),
				Source:  source,
				Tags:    tags,
			})
			if errors.Is(err, model.ErrRejectedByPolicy) {
				fmt.Fprintf(c.Root().Writer, "Skipped: memory rejected by policy\n")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Stored %s (type=%s, importance=%.2f)\n", m.ID, m.Type, m.Importance)
			return nil
		},
	}
}
