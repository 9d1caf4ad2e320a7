// Package retrieval narrows the corpus to the chunks a question is answered
// from: period summaries first, then chunk similarity within them.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/intent"
	"github.com/MikeSquared-Agency/twin/internal/oracle"
)

// Config bounds and weights a retrieval call.
type Config struct {
	TopK            int
	MaxContextChars int
	TopPeriods      int
	MinScore        float64
	PeriodBonus     float64
	ChunkBonus      float64
	PeriodMargin    time.Duration
}

// Result is one ranked chunk. The chunk points into the snapshot.
type Result struct {
	Chunk *corpus.Chunk `json:"chunk"`
	Score float64       `json:"score"`
}

// Selection is the outcome of one retrieval call plus what led to it.
type Selection struct {
	Periods    []string `json:"periods,omitempty"`
	Candidates int      `json:"candidates"`
	Results    []Result `json:"results"`
}

type Retriever struct {
	embedder oracle.Embedder
	config   Config
	logger   *slog.Logger
}

func NewRetriever(embedder oracle.Embedder, config Config, logger *slog.Logger) *Retriever {
	return &Retriever{embedder: embedder, config: config, logger: logger}
}

// Retrieve ranks the snapshot's chunks against the question. An empty
// result is valid. The only error is a failure to embed the question.
func (r *Retriever) Retrieve(ctx context.Context, snap *corpus.Snapshot, question string, in intent.Intent) (Selection, error) {
	var sel Selection
	if snap == nil || snap.Len() == 0 {
		return sel, nil
	}

	qvec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return sel, fmt.Errorf("embed question: %w", err)
	}

	periods := r.selectPeriods(snap.Periods(), qvec, in.Window)
	for _, p := range periods {
		sel.Periods = append(sel.Periods, p.ID)
	}

	positions := candidates(snap, periods, in.Window)
	sel.Candidates = len(positions)

	scored, err := r.score(ctx, snap, positions, qvec, in.Window)
	if err != nil {
		return sel, err
	}
	sel.Results = r.pack(scored)

	r.logger.Debug("retrieval complete",
		"periods", sel.Periods,
		"candidates", sel.Candidates,
		"results", len(sel.Results),
	)
	return sel, nil
}

type scoredPeriod struct {
	period *corpus.Period
	score  float64
}

// selectPeriods keeps the TopPeriods best summaries. With a window, periods
// overlapping it get PeriodBonus and periods outside the widened window are
// dropped.
func (r *Retriever) selectPeriods(all []corpus.Period, qvec []float64, w *corpus.Window) []*corpus.Period {
	if len(all) == 0 {
		return nil
	}

	var widened corpus.Window
	if w != nil {
		widened = w.Expand(r.config.PeriodMargin)
	}

	scored := make([]scoredPeriod, 0, len(all))
	for i := range all {
		p := &all[i]
		s := oracle.Cosine(qvec, p.Embedding)
		if w != nil {
			if !p.Window.Overlaps(widened) {
				continue
			}
			if p.Window.Overlaps(*w) {
				s += r.config.PeriodBonus
			}
		}
		scored = append(scored, scoredPeriod{period: p, score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if r.config.TopPeriods > 0 && len(scored) > r.config.TopPeriods {
		scored = scored[:r.config.TopPeriods]
	}

	out := make([]*corpus.Period, len(scored))
	for i, sp := range scored {
		out[i] = sp.period
	}
	return out
}

// candidates returns snapshot positions in corpus order, each once even when
// several periods list the same chunk.
func candidates(snap *corpus.Snapshot, periods []*corpus.Period, w *corpus.Window) []int {
	if len(snap.Periods()) == 0 {
		return allPositions(snap.Len())
	}

	seen := make(map[int]bool)
	for _, p := range periods {
		for _, id := range p.ChunkIDs {
			if pos, ok := snap.Position(id); ok {
				seen[pos] = true
			}
		}
	}
	if w != nil {
		for i, c := range snap.Chunks() {
			if w.Contains(c.Timestamp) {
				seen[i] = true
			}
		}
	}
	if len(seen) == 0 && w == nil {
		return allPositions(snap.Len())
	}

	out := make([]int, 0, len(seen))
	for pos := range seen {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}

func allPositions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// score computes every candidate's score in parallel shards. Each score is
// written to its own slot so the result does not depend on scheduling.
func (r *Retriever) score(ctx context.Context, snap *corpus.Snapshot, positions []int, qvec []float64, w *corpus.Window) ([]Result, error) {
	results := make([]Result, len(positions))
	chunks := snap.Chunks()

	shards := runtime.GOMAXPROCS(0)
	size := (len(positions) + shards - 1) / shards
	if size < 64 {
		size = 64
	}

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(positions); lo += size {
		hi := min(lo+size, len(positions))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				pos := positions[i]
				s := oracle.Cosine(qvec, snap.Vector(pos))
				if w != nil && w.Contains(chunks[pos].Timestamp) {
					s += r.config.ChunkBonus
				}
				results[i] = Result{Chunk: &chunks[pos], Score: s}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score chunks: %w", err)
	}

	// positions are in corpus order, so a stable sort breaks ties by it.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// pack emits ranked chunks until TopK or the character budget is reached.
// A chunk too large for what is left of the budget is skipped, not cut.
func (r *Retriever) pack(ranked []Result) []Result {
	remaining := r.config.MaxContextChars
	seen := make(map[string]bool)
	out := []Result{}

	for _, res := range ranked {
		if len(out) >= r.config.TopK {
			break
		}
		if res.Score < r.config.MinScore {
			break
		}
		if seen[res.Chunk.ID] {
			continue
		}
		n := utf8.RuneCountInString(res.Chunk.Text)
		if n > remaining {
			continue
		}
		seen[res.Chunk.ID] = true
		remaining -= n
		out = append(out, res)
	}
	return out
}
