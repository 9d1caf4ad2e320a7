// Package embedcache keeps chunk embeddings in SQLite so a restart or a
// corpus reload only embeds text that changed.
package embedcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunk_embeddings (
    chunk_id     TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    model        TEXT NOT NULL,
    vector_json  TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    PRIMARY KEY (chunk_id, content_hash, model)
);
`

// Cache implements corpus.VectorCache.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path. ":memory:" is allowed.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	return New(db)
}

// New initializes the schema on an existing handle.
func New(db *sql.DB) (*Cache, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create chunk_embeddings: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached vector for an exact (chunk, content, model) match.
func (c *Cache) Get(ctx context.Context, chunkID, contentHash, model string) ([]float64, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT vector_json FROM chunk_embeddings WHERE chunk_id = ? AND content_hash = ? AND model = ?`,
		chunkID, contentHash, model,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read embedding: %w", err)
	}

	var v []float64
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, fmt.Errorf("decode embedding: %w", err)
	}
	return v, true, nil
}

// Put stores a vector, replacing any previous one for the same key.
func (c *Cache) Put(ctx context.Context, chunkID, contentHash, model string, vector []float64) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_embeddings (chunk_id, content_hash, model, vector_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		chunkID, contentHash, model, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write embedding: %w", err)
	}
	return nil
}

// Prune drops vectors for chunks no longer in the corpus.
func (c *Cache) Prune(ctx context.Context, keep map[string]bool) (int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT chunk_id FROM chunk_embeddings`)
	if err != nil {
		return 0, fmt.Errorf("list cached chunks: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan chunk id: %w", err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate cached chunks: %w", err)
	}

	for _, id := range stale {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM chunk_embeddings WHERE chunk_id = ?`, id); err != nil {
			return 0, fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return len(stale), nil
}
