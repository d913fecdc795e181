package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:    "kioku",
		Usage:   "Hybrid memory retrieval engine for AI agents",
		Version: version,
		Commands: []*cli.Command{
			rememberCommand(),
			recallCommand(),
			showCommand(),
			listCommand(),
			forgetCommand(),
			replCommand(),
			serveCommand(),
			maintainCommand(),
			statsCommand(),
			exportCommand(),
			importCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
