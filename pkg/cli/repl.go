package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/usecase/session"
	"github.com/urfave/cli/v3"
)

func replCommand() *cli.Command {
	var (
		cfg   config
		limit int64
		turns int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"k"},
			Usage:       "Memories retrieved per query",
			Value:       5,
			Destination: &limit,
		},
		&cli.IntFlag{
			Name:        "turns",
			Usage:       "Conversation turns kept in working memory",
			Value:       int64(model.DefaultWorkingMemoryCapacity),
			Destination: &turns,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "repl",
		Usage: "Interactive memory session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			engine, closer, err := cfg.newEngine(ctx)
			if err != nil {
				return err
			}
			defer closer()

			sess := session.New(engine,
				session.WithRetrieveLimit(int(limit)),
				session.WithWorkingMemoryTurns(int(turns)),
			)

			rl, err := readline.New("kioku> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintln(w, "Interactive memory session. Type a query to recall, :help for commands.")

			for {
				line, err := rl.Readline()
				if err != nil {
					if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
						break
					}
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}

				if strings.HasPrefix(line, ":") {
					if quit := runReplCommand(ctx, w, engine, sess, line); quit {
						break
					}
					continue
				}

				sess.RecordTurn("user", line)

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " recalling..."
				sp.Start()
				result, err := engine.Retrieve(ctx, line, int(limit), memory.Filters{})
				sp.Stop()

				if err != nil {
					fmt.Fprintf(w, "recall failed: %v\n", err)
					continue
				}

				printRetrieval(ctx, w, engine, result)
			}

			fmt.Fprintln(w, "bye")
			return nil
		},
	}
}

// runReplCommand dispatches a colon-prefixed command. Returns true when the
// session should end.
func runReplCommand(ctx context.Context, w io.Writer, engine *memory.UseCase, sess *session.Session, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case ":quit", ":q", ":exit":
		return true

	case ":help":
		fmt.Fprintln(w, "  <query>              recall memories relevant to the query")
		fmt.Fprintln(w, "  :remember <content>  store a new memory")
		fmt.Fprintln(w, "  :forget <id>         delete a memory")
		fmt.Fprintln(w, "  :context <query>     show the grounding block for a query")
		fmt.Fprintln(w, "  :stats               show engine statistics")
		fmt.Fprintln(w, "  :quit                end the session")

	case ":remember":
		if rest == "" {
			fmt.Fprintln(w, "usage: :remember <content>")
			return false
		}
		m, err := engine.Write(ctx, memory.WriteInput{Content: rest})
		if err != nil {
			fmt.Fprintf(w, "remember failed: %v\n", err)
			return false
		}
		fmt.Fprintf(w, "stored %s (importance %.2f)\n", m.ID.Short(), m.Importance)

	case ":forget":
		if rest == "" {
			fmt.Fprintln(w, "usage: :forget <id>")
			return false
		}
		if err := engine.Forget(ctx, model.MemoryID(rest)); err != nil {
			fmt.Fprintf(w, "forget failed: %v\n", err)
			return false
		}
		fmt.Fprintf(w, "forgot %s\n", rest)

	case ":context":
		if rest == "" {
			fmt.Fprintln(w, "usage: :context <query>")
			return false
		}
		block, err := sess.GroundingContext(ctx, rest)
		if err != nil {
			fmt.Fprintf(w, "context failed: %v\n", err)
			return false
		}
		if block == "" {
			fmt.Fprintln(w, "(empty)")
			return false
		}
		fmt.Fprintln(w, block)

	case ":stats":
		stats := engine.Stats(ctx)
		fmt.Fprintf(w, "total=%d archived=%d vector_live=%d cache=%d queue=%d\n",
			stats.Total, stats.Archived, stats.VectorLive, stats.CacheEntries, stats.QueueDepth)

	default:
		fmt.Fprintf(w, "unknown command %s (:help for commands)\n", cmd)
	}

	return false
}
