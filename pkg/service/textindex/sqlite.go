package textindex

import (
	"context"
	"database/sql"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	_ "modernc.org/sqlite"
)

// sqliteIndex is an FTS5-backed keyword index. bm25() returns lower-is-better
// scores, so they are negated before leaving this package.
type sqliteIndex struct {
	db *sql.DB
}

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
	memory_id UNINDEXED,
	content,
	tokenize = 'unicode61'
);
CREATE TABLE IF NOT EXISTS fts_tombstones (
	memory_id TEXT PRIMARY KEY
);
`

// NewSQLite opens (or creates) an FTS5 index at the given path. Use
// ":memory:" for an ephemeral index.
func NewSQLite(path string) (Index, error) {
	if path == "" {
		return nil, goerr.New("text index path is required")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open text index database", goerr.V("path", path))
	}

	if _, err := db.Exec(ftsSchema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to create text index schema")
	}

	return &sqliteIndex{db: db}, nil
}

func (x *sqliteIndex) Insert(ctx context.Context, id model.MemoryID, text string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin text index insert")
	}
	defer func() { _ = tx.Rollback() }()

	// Re-inserting an ID replaces its previous row and clears any tombstone
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts WHERE memory_id = ?`, string(id)); err != nil {
		return goerr.Wrap(err, "failed to clear previous text index row", goerr.V("id", id))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_tombstones WHERE memory_id = ?`, string(id)); err != nil {
		return goerr.Wrap(err, "failed to clear text index tombstone", goerr.V("id", id))
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO memory_fts (memory_id, content) VALUES (?, ?)`, string(id), text); err != nil {
		return goerr.Wrap(err, "failed to insert into text index", goerr.V("id", id))
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit text index insert", goerr.V("id", id))
	}
	return nil
}

func (x *sqliteIndex) Delete(ctx context.Context, id model.MemoryID) error {
	if _, err := x.db.ExecContext(ctx,
		`INSERT INTO fts_tombstones (memory_id) VALUES (?) ON CONFLICT DO NOTHING`, string(id)); err != nil {
		return goerr.Wrap(err, "failed to tombstone text index entry", goerr.V("id", id))
	}
	return nil
}

func (x *sqliteIndex) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	query := escapeQuery(text)
	if query == "" {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT memory_id, bm25(memory_fts) AS rank
		FROM memory_fts
		WHERE memory_fts MATCH ?
		  AND memory_id NOT IN (SELECT memory_id FROM fts_tombstones)
		ORDER BY rank, memory_id
		LIMIT ?`, query, k)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query text index", goerr.V("query", query))
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, goerr.Wrap(err, "failed to scan text index row")
		}
		matches = append(matches, Match{
			ID:    model.MemoryID(id),
			Score: -rank,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate text index rows")
	}

	return matches, nil
}

func (x *sqliteIndex) Compact(ctx context.Context) (int, error) {
	res, err := x.db.ExecContext(ctx,
		`DELETE FROM memory_fts WHERE memory_id IN (SELECT memory_id FROM fts_tombstones)`)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to compact text index")
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count compacted rows")
	}

	if _, err := x.db.ExecContext(ctx, `DELETE FROM fts_tombstones`); err != nil {
		return 0, goerr.Wrap(err, "failed to clear text index tombstones")
	}

	return int(removed), nil
}

func (x *sqliteIndex) Close() error {
	if err := x.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close text index database")
	}
	return nil
}

// ftsSpecials are FTS5 syntax characters that would break a raw MATCH
const ftsSpecials = `"*()[]{}:@+-=<>!^.,;/\&|~%$#'` + "`?"

// escapeQuery strips FTS5 syntax characters and joins the remaining tokens
// with OR so partial matches still rank.
func escapeQuery(text string) string {
	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(ftsSpecials, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}
