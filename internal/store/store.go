package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS answers (
    id               UUID PRIMARY KEY,
    request_id       TEXT NOT NULL DEFAULT '',
    question         TEXT NOT NULL,
    mode             TEXT NOT NULL,
    window_start     TIMESTAMPTZ,
    window_end       TIMESTAMPTZ,
    refused          BOOLEAN NOT NULL,
    answer_text      TEXT NOT NULL,
    confidence       TEXT NOT NULL,
    reason           TEXT NOT NULL,
    verdict          TEXT NOT NULL DEFAULT '',
    verdict_reason   TEXT NOT NULL DEFAULT '',
    snapshot_version UUID,
    duration_ms      BIGINT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS answer_citations (
    answer_id UUID NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
    position  INT  NOT NULL,
    chunk_id  TEXT NOT NULL,
    PRIMARY KEY (answer_id, position)
);

CREATE TABLE IF NOT EXISTS answer_evidence (
    answer_id UUID NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
    position  INT  NOT NULL,
    chunk_id  TEXT NOT NULL,
    quote     TEXT NOT NULL,
    PRIMARY KEY (answer_id, position)
);

CREATE INDEX IF NOT EXISTS answers_refused_created_idx ON answers (refused, created_at DESC);
`

// Migrate creates the answer audit tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
