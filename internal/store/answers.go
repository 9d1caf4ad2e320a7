package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no answer has the requested ID.
var ErrNotFound = errors.New("answer not found")

// AnswerRecord is one audited question and its outcome.
type AnswerRecord struct {
	ID              uuid.UUID        `json:"id"`
	RequestID       string           `json:"request_id,omitempty"`
	Question        string           `json:"question"`
	Mode            string           `json:"mode"`
	WindowStart     *time.Time       `json:"window_start,omitempty"`
	WindowEnd       *time.Time       `json:"window_end,omitempty"`
	Refused         bool             `json:"refused"`
	Text            string           `json:"answer"`
	Confidence      string           `json:"confidence"`
	Reason          string           `json:"reason"`
	Verdict         string           `json:"verdict,omitempty"`
	VerdictReason   string           `json:"verdict_reason,omitempty"`
	SnapshotVersion uuid.UUID        `json:"snapshot_version"`
	DurationMS      int64            `json:"duration_ms"`
	CreatedAt       time.Time        `json:"created_at"`
	Citations       []string         `json:"citations"`
	Evidence        []EvidenceRecord `json:"evidence"`
}

type EvidenceRecord struct {
	ChunkID string `json:"chunk_id"`
	Quote   string `json:"quote"`
}

// WriteAnswer writes an answer with its citations and evidence in one
// transaction. Tables: answers, answer_citations, answer_evidence.
func (s *Store) WriteAnswer(ctx context.Context, rec AnswerRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Insert answer
	_, err = tx.Exec(ctx, `
		INSERT INTO answers (id, request_id, question, mode, window_start, window_end, refused,
			answer_text, confidence, reason, verdict, verdict_reason, snapshot_version, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.RequestID, rec.Question, rec.Mode, rec.WindowStart, rec.WindowEnd, rec.Refused,
		rec.Text, rec.Confidence, rec.Reason, rec.Verdict, rec.VerdictReason, rec.SnapshotVersion,
		rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	// 2. Insert answer_citations
	for i, chunkID := range rec.Citations {
		_, err = tx.Exec(ctx, `
			INSERT INTO answer_citations (answer_id, position, chunk_id)
			VALUES ($1, $2, $3)`,
			rec.ID, i, chunkID,
		)
		if err != nil {
			return fmt.Errorf("insert citation: %w", err)
		}
	}

	// 3. Insert answer_evidence
	for i, ev := range rec.Evidence {
		_, err = tx.Exec(ctx, `
			INSERT INTO answer_evidence (answer_id, position, chunk_id, quote)
			VALUES ($1, $2, $3, $4)`,
			rec.ID, i, ev.ChunkID, ev.Quote,
		)
		if err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetAnswer loads an answer with its citations and evidence in order.
func (s *Store) GetAnswer(ctx context.Context, id uuid.UUID) (*AnswerRecord, error) {
	rec := &AnswerRecord{ID: id}
	var snapshot *uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT request_id, question, mode, window_start, window_end, refused, answer_text,
			confidence, reason, verdict, verdict_reason, snapshot_version, duration_ms, created_at
		FROM answers WHERE id = $1`, id,
	).Scan(&rec.RequestID, &rec.Question, &rec.Mode, &rec.WindowStart, &rec.WindowEnd, &rec.Refused,
		&rec.Text, &rec.Confidence, &rec.Reason, &rec.Verdict, &rec.VerdictReason, &snapshot,
		&rec.DurationMS, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	if snapshot != nil {
		rec.SnapshotVersion = *snapshot
	}

	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id FROM answer_citations WHERE answer_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get citations: %w", err)
	}
	rec.Citations, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan citations: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT chunk_id, quote FROM answer_evidence WHERE answer_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get evidence: %w", err)
	}
	rec.Evidence, err = pgx.CollectRows(rows, pgx.RowToStructByPos[EvidenceRecord])
	if err != nil {
		return nil, fmt.Errorf("scan evidence: %w", err)
	}
	return rec, nil
}

// RecentRefusals lists the latest refused questions, newest first.
func (s *Store) RecentRefusals(ctx context.Context, limit int) ([]AnswerRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, question, mode, reason, created_at
		FROM answers WHERE refused
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list refusals: %w", err)
	}
	defer rows.Close()

	var out []AnswerRecord
	for rows.Next() {
		rec := AnswerRecord{Refused: true, Citations: []string{}}
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Mode, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refusal: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
