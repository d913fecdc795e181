package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a memory in full",
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

			m, err := engine.Get(ctx, model.MemoryID(id))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "ID:          %s\n", m.ID)
			fmt.Fprintf(w, "Type:        %s\n", m.Type)
			fmt.Fprintf(w, "Content:     %s\n", m.Content)
			if m.Source != "" {
				fmt.Fprintf(w, "Source:      %s\n", m.Source)
			}
			if len(m.Tags) > 0 {
				fmt.Fprintf(w, "Tags:        %s\n", strings.Join(m.Tags, ", "))
			}
			fmt.Fprintf(w, "Importance:  %.2f (effective %.2f)\n", m.Importance, m.EffectiveImportance())
			fmt.Fprintf(w, "Vector:      %s (%d dims)\n", m.VectorState, len(m.Embedding))
			fmt.Fprintf(w, "Created:     %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "Accessed:    %s (%d times)\n", m.LastAccessedAt.Format("2006-01-02 15:04:05"), m.AccessCount)
			if m.Archived {
				fmt.Fprintf(w, "Archived:    yes\n")
			}

			return nil
		},
	}
}
