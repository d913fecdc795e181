package cli

import (
	"context"

	mcpserver "github.com/m-mizutani/kioku/pkg/service/mcp"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the memory engine as an MCP server over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			logging.From(ctx).Info("starting MCP server", "version", c.Root().Version)

			server := mcpserver.NewServer(engine, c.Root().Version)
			return server.Run(ctx)
		},
	}
}
