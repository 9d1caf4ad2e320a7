// Package periods builds and caches the weekly summaries retrieval uses to
// narrow the corpus before ranking chunks.
package periods

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/oracle"
)

const (
	maxChunksPerSummary = 20
	maxSummaryInput     = 3000 // runes
)

const summarySystem = `You summarise one week of a person's work messages. Use only what the messages say.`

const summaryPrompt = `Summarize the following week's messages and activities in 2-3 concise sentences.
Focus on topics, decisions, and key work mentioned. Do not invent details.

Week: %s

Messages:
---
%s
---`

const summarySchema = `{"summary": "string"}`

type summaryResponse struct {
	Summary *string `json:"summary"`
}

// Builder produces weekly periods from a corpus.
type Builder struct {
	gen    oracle.Generator
	emb    oracle.Embedder
	logger *slog.Logger
}

func NewBuilder(gen oracle.Generator, emb oracle.Embedder, logger *slog.Logger) *Builder {
	return &Builder{gen: gen, emb: emb, logger: logger}
}

// WeekStart returns midnight UTC of the Sunday that begins t's week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// WeekKey formats a Sunday-start week as YYYY-Www, where ww counts weeks
// from the first Sunday of the year (days before it are week 00).
func WeekKey(start time.Time) string {
	yday := start.YearDay() - 1
	week := (yday + 7 - int(start.Weekday())) / 7
	return fmt.Sprintf("%d-W%02d", start.Year(), week)
}

// GroupWeekly buckets timestamped chunks by week, in chronological order.
// Chunks without a timestamp belong to no period.
func GroupWeekly(chunks []corpus.Chunk) []corpus.Period {
	byStart := make(map[time.Time]*corpus.Period)
	var starts []time.Time

	for _, c := range chunks {
		if c.Timestamp.IsZero() {
			continue
		}
		start := WeekStart(c.Timestamp)
		p, ok := byStart[start]
		if !ok {
			p = &corpus.Period{
				ID: WeekKey(start),
				Window: corpus.Window{
					Start: start,
					End:   start.AddDate(0, 0, 7).Add(-time.Nanosecond),
				},
			}
			byStart[start] = p
			starts = append(starts, start)
		}
		p.ChunkIDs = append(p.ChunkIDs, c.ID)
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	out := make([]corpus.Period, 0, len(starts))
	for _, s := range starts {
		out = append(out, *byStart[s])
	}
	return out
}

// BuildWeekly groups the corpus by week and summarises and embeds each week.
// A week whose summary or embedding fails is kept without an embedding so
// retrieval scores it zero instead of losing its chunks.
func (b *Builder) BuildWeekly(ctx context.Context, chunks []corpus.Chunk) ([]corpus.Period, error) {
	byID := make(map[string]corpus.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	periods := GroupWeekly(chunks)
	for i := range periods {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build periods: %w", err)
		}
		p := &periods[i]

		summary, err := b.summarise(ctx, p, byID)
		if err != nil {
			b.logger.Warn("period summary failed", "period", p.ID, "error", err)
			continue
		}
		p.Summary = summary

		vec, err := b.emb.Embed(ctx, summary)
		if err != nil {
			b.logger.Warn("period embedding failed", "period", p.ID, "error", err)
			continue
		}
		p.Embedding = vec
		b.logger.Info("period summarised", "period", p.ID, "chunks", len(p.ChunkIDs))
	}
	return periods, nil
}

func (b *Builder) summarise(ctx context.Context, p *corpus.Period, byID map[string]corpus.Chunk) (string, error) {
	var parts []string
	for i, id := range p.ChunkIDs {
		if i >= maxChunksPerSummary {
			break
		}
		parts = append(parts, byID[id].Text)
	}
	combined := strings.Join(parts, "\n\n---\n\n")
	if r := []rune(combined); len(r) > maxSummaryInput {
		combined = string(r[:maxSummaryInput])
	}

	raw, err := b.gen.Generate(ctx, oracle.Request{
		System:    summarySystem,
		Prompt:    fmt.Sprintf(summaryPrompt, p.ID, combined),
		Schema:    summarySchema,
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	var resp summaryResponse
	if err := oracle.DecodeStrict(raw, &resp); err != nil {
		return "", err
	}
	if resp.Summary == nil || strings.TrimSpace(*resp.Summary) == "" {
		return "", fmt.Errorf("%w: empty summary", oracle.ErrSchema)
	}
	return strings.TrimSpace(*resp.Summary), nil
}
