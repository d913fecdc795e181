package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/urfave/cli/v3"
)

func forgetCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:      "forget",
		Usage:     "Delete a memory",
		ArgsUsage: "<memory-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			id := c.Args().First()
			if id == "" {
				return errors.New("memory-id argument is required")
			}

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			if err := engine.Forget(ctx, model.MemoryID(id)); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Forgot %s\n", id)
			return nil
		},
	}
}
