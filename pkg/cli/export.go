package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:      "export",
		Usage:     "Export all memories as JSONL to a local file or gs:// object",
		ArgsUsage: "<destination>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			dest := c.Args().First()
			if dest == "" {
				return errors.New("destination argument is required")
			}

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			storage, key, err := cfg.newStorage(ctx, dest)
			if err != nil {
				return err
			}

			w, err := storage.Put(ctx, key)
			if err != nil {
				return err
			}

			count, err := engine.Export(ctx, w)
			if err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return goerr.Wrap(err, "failed to finalize export", goerr.V("dest", dest))
			}

			fmt.Fprintf(c.Root().Writer, "Exported %d memories to %s\n", count, dest)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:      "import",
		Usage:     "Import memories from a JSONL archive and rebuild both indexes",
		ArgsUsage: "<source>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			src := c.Args().First()
			if src == "" {
				return errors.New("source argument is required")
			}

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			storage, key, err := cfg.newStorage(ctx, src)
			if err != nil {
				return err
			}

			r, err := storage.Get(ctx, key)
			if err != nil {
				return err
			}
			defer r.Close()

			count, err := engine.Import(ctx, r)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Imported %d memories from %s\n", count, src)
			return nil
		},
	}
}
