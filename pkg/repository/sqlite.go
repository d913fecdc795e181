package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	_ "modernc.org/sqlite"
)

// sqliteRepo implements Repository on a single SQLite database file.
// Embeddings are stored as little-endian float32 blobs.
type sqliteRepo struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	content          TEXT NOT NULL,
	type             TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	tags             TEXT NOT NULL DEFAULT '[]',
	metadata         TEXT NOT NULL DEFAULT '{}',
	importance       REAL NOT NULL DEFAULT 0.5,
	decay_factor     REAL NOT NULL DEFAULT 1.0,
	embedding        BLOB,
	vector_state     TEXT NOT NULL DEFAULT 'pending',
	archived         INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories (created_at);
`

// NewSQLite opens (or creates) a SQLite-backed repository
func NewSQLite(path string) (interfaces.Repository, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to create sqlite schema")
	}

	return &sqliteRepo{db: db}, nil
}

func (r *sqliteRepo) PutMemory(ctx context.Context, memory *model.Memory) error {
	tags, metadata, err := marshalAux(memory)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories
			(id, content, type, source, tags, metadata, importance, decay_factor,
			 embedding, vector_state, archived, created_at, last_accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(memory.ID), memory.Content, string(memory.Type), memory.Source,
		tags, metadata, memory.Importance, memory.DecayFactor,
		encodeVector(memory.Embedding), string(memory.VectorState), boolToInt(memory.Archived),
		memory.CreatedAt.UnixNano(), memory.LastAccessedAt.UnixNano(), memory.AccessCount)
	if err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("id", memory.ID))
	}
	return nil
}

func (r *sqliteRepo) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	row := r.db.QueryRowContext(ctx, selectMemories+` WHERE id = ?`, string(id))

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}
	return m, nil
}

func (r *sqliteRepo) ListMemories(ctx context.Context, filters ...interfaces.Filter) ([]*model.Memory, error) {
	rows, err := r.db.QueryContext(ctx, selectMemories+` ORDER BY created_at, id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories")
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory row")
		}

		match := true
		for _, f := range filters {
			if !f(m) {
				match = false
				break
			}
		}
		if match {
			out = append(out, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory rows")
	}

	return out, nil
}

func (r *sqliteRepo) UpdateMemory(ctx context.Context, memory *model.Memory) error {
	tags, metadata, err := marshalAux(memory)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, type = ?, source = ?, tags = ?, metadata = ?,
			importance = ?, decay_factor = ?, embedding = ?, vector_state = ?,
			archived = ?, last_accessed_at = ?, access_count = ?
		WHERE id = ?`,
		memory.Content, string(memory.Type), memory.Source, tags, metadata,
		memory.Importance, memory.DecayFactor, encodeVector(memory.Embedding), string(memory.VectorState),
		boolToInt(memory.Archived), memory.LastAccessedAt.UnixNano(), memory.AccessCount,
		string(memory.ID))
	if err != nil {
		return goerr.Wrap(err, "failed to update memory", goerr.V("id", memory.ID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to check update result", goerr.V("id", memory.ID))
	}
	if affected == 0 {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot update missing memory", goerr.V("id", memory.ID))
	}
	return nil
}

func (r *sqliteRepo) PutVector(ctx context.Context, id model.MemoryID, vector []float32, state model.VectorState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET embedding = ?, vector_state = ? WHERE id = ?`,
		encodeVector(vector), string(state), string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to put vector", goerr.V("id", id))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to check vector update result", goerr.V("id", id))
	}
	if affected == 0 {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot store vector for missing memory", goerr.V("id", id))
	}
	return nil
}

func (r *sqliteRepo) DeleteMemory(ctx context.Context, id model.MemoryID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to delete memory", goerr.V("id", id))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to check delete result", goerr.V("id", id))
	}
	if affected == 0 {
		return goerr.Wrap(model.ErrMemoryNotFound, "cannot delete missing memory", goerr.V("id", id))
	}
	return nil
}

func (r *sqliteRepo) CountMemories(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE archived = 0`).Scan(&count); err != nil {
		return 0, goerr.Wrap(err, "failed to count memories")
	}
	return count, nil
}

func (r *sqliteRepo) Close() error {
	if err := r.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sqlite database")
	}
	return nil
}

const selectMemories = `
	SELECT id, content, type, source, tags, metadata, importance, decay_factor,
	       embedding, vector_state, archived, created_at, last_accessed_at, access_count
	FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var (
		m          model.Memory
		id         string
		memType    string
		tags       string
		metadata   string
		embedding  []byte
		state      string
		archived   int
		createdAt  int64
		accessedAt int64
	)

	if err := row.Scan(&id, &m.Content, &memType, &m.Source, &tags, &metadata,
		&m.Importance, &m.DecayFactor, &embedding, &state, &archived,
		&createdAt, &accessedAt, &m.AccessCount); err != nil {
		return nil, err
	}

	m.ID = model.MemoryID(id)
	m.Type = model.MemoryType(memType)
	m.VectorState = model.VectorState(state)
	m.Archived = archived != 0
	m.CreatedAt = time.Unix(0, createdAt)
	m.LastAccessedAt = time.Unix(0, accessedAt)
	m.Embedding = decodeVector(embedding)

	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, goerr.Wrap(err, "failed to decode tags", goerr.V("id", id))
	}
	if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
		return nil, goerr.Wrap(err, "failed to decode metadata", goerr.V("id", id))
	}

	return &m, nil
}

func marshalAux(memory *model.Memory) (tags string, metadata string, err error) {
	t := memory.Tags
	if t == nil {
		t = []string{}
	}
	tagsRaw, err := json.Marshal(t)
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to encode tags", goerr.V("id", memory.ID))
	}

	md := memory.Metadata
	if md == nil {
		md = map[string]string{}
	}
	metadataRaw, err := json.Marshal(md)
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to encode metadata", goerr.V("id", memory.ID))
	}

	return string(tagsRaw), string(metadataRaw), nil
}

// encodeVector packs a vector as little-endian float32 bytes; nil stays nil
func encodeVector(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
