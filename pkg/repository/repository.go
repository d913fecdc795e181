package repository

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
)

// New creates a repository from a DSN:
//   - "mem://"                                → in-memory (tests, throwaway runs)
//   - "firestore://<project>/<database>"      → Firestore
//   - anything else                           → SQLite database file path
func New(ctx context.Context, dsn string) (interfaces.Repository, error) {
	switch {
	case dsn == "":
		return nil, goerr.New("repository DSN is required")
	case dsn == "mem://":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "firestore://"):
		rest := strings.TrimPrefix(dsn, "firestore://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, goerr.New("invalid firestore DSN, expected firestore://<project>/<database>", goerr.V("dsn", dsn))
		}
		return NewFirestore(ctx, parts[0], parts[1])
	default:
		return NewSQLite(dsn)
	}
}
