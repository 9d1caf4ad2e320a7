// Package extractor asks the generative oracle for verbatim quotes and keeps
// only those that really occur in the chunk they cite.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/twin/internal/intent"
	"github.com/MikeSquared-Agency/twin/internal/oracle"
	"github.com/MikeSquared-Agency/twin/internal/retrieval"
)

type Extractor struct {
	llm    oracle.Generator
	logger *slog.Logger
}

func New(llm oracle.Generator, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, logger: logger}
}

// Extract returns 0 to MaxItems verified quotes in the order the oracle gave
// them. Output that does not match the schema yields no items and no error;
// an error means the oracle could not be reached.
func (e *Extractor) Extract(ctx context.Context, question string, mode intent.Mode, retrieved []retrieval.Result) ([]Item, error) {
	if len(retrieved) == 0 {
		return nil, nil
	}

	raw, err := e.llm.Generate(ctx, oracle.Request{
		System:    systemPrompt,
		Prompt:    fmt.Sprintf(extractionUserPrompt, question, mode, renderContext(retrieved)),
		Schema:    extractionSchema,
		MaxTokens: 1024,
	})
	if errors.Is(err, oracle.ErrSchema) {
		e.logger.Warn("extraction output rejected", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evidence extraction: %w", err)
	}

	candidates, err := decode(raw)
	if err != nil {
		e.logger.Warn("extraction output rejected", "error", err, "raw_len", len(raw))
		return nil, nil
	}

	items := e.verify(candidates, mode, retrieved)
	e.logger.Debug("extraction complete",
		"mode", mode,
		"candidates", len(candidates),
		"verified", len(items),
	)
	return items, nil
}

func renderContext(retrieved []retrieval.Result) string {
	parts := make([]string, 0, len(retrieved))
	for _, r := range retrieved {
		c := r.Chunk
		when := "undated"
		if !c.Timestamp.IsZero() {
			when = c.Timestamp.Format("2006-01-02 15:04")
		}
		parts = append(parts, fmt.Sprintf("[chunk %s] (%s, %s)\n%s", c.ID, c.Source, when, c.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// decode accepts only a JSON array of complete {quote, chunkId} objects.
func decode(raw string) ([]candidate, error) {
	var out []candidate
	if err := oracle.DecodeStrict(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: expected array", oracle.ErrSchema)
	}
	if len(out) > MaxItems {
		return nil, fmt.Errorf("%w: %d items, limit %d", oracle.ErrSchema, len(out), MaxItems)
	}
	for i, c := range out {
		if c.Quote == nil || c.ChunkID == nil {
			return nil, fmt.Errorf("%w: item %d missing quote or chunkId", oracle.ErrSchema, i)
		}
	}
	return out, nil
}

func (e *Extractor) verify(candidates []candidate, mode intent.Mode, retrieved []retrieval.Result) []Item {
	byID := make(map[string]retrieval.Result, len(retrieved))
	for _, r := range retrieved {
		byID[r.Chunk.ID] = r
	}

	minLen := MinQuoteFact
	if mode == intent.ModeSummary {
		minLen = MinQuoteSummary
	}

	var items []Item
	for _, c := range candidates {
		quote := Normalize(*c.Quote)
		if utf8.RuneCountInString(quote) < minLen {
			e.logger.Debug("quote dropped", "reason", "too short", "chunk_id", *c.ChunkID)
			continue
		}
		r, ok := byID[*c.ChunkID]
		if !ok {
			e.logger.Debug("quote dropped", "reason", "unknown chunk", "chunk_id", *c.ChunkID)
			continue
		}
		if !strings.Contains(Normalize(r.Chunk.Text), quote) {
			e.logger.Debug("quote dropped", "reason", "not verbatim", "chunk_id", *c.ChunkID)
			continue
		}
		items = append(items, Item{
			Quote:     quote,
			ChunkID:   r.Chunk.ID,
			Verified:  true,
			Source:    r.Chunk.Source,
			Timestamp: r.Chunk.Timestamp,
		})
	}
	return items
}

// Normalize collapses whitespace runs to one space and trims both ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
