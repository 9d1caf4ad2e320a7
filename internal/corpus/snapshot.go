package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/twin/internal/oracle"
)

// Snapshot is the read-only corpus view a question is answered against.
// Nothing in it changes after construction; a rebuilt corpus is a new
// Snapshot.
type Snapshot struct {
	Version  uuid.UUID
	LoadedAt time.Time

	chunks  []Chunk
	byID    map[string]int
	vectors [][]float64
	periods []Period
}

// NewSnapshot takes ownership of its arguments. vectors is parallel to chunks
// and may hold nil entries for chunks that could not be embedded.
func NewSnapshot(chunks []Chunk, vectors [][]float64, periods []Period) *Snapshot {
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}
	if len(vectors) != len(chunks) {
		padded := make([][]float64, len(chunks))
		copy(padded, vectors)
		vectors = padded
	}
	return &Snapshot{
		Version:  uuid.New(),
		LoadedAt: time.Now().UTC(),
		chunks:   chunks,
		byID:     byID,
		vectors:  vectors,
		periods:  periods,
	}
}

// Chunks returns the corpus in load order. Callers must not modify it.
func (s *Snapshot) Chunks() []Chunk { return s.chunks }

// Periods returns the period summaries. Callers must not modify them.
func (s *Snapshot) Periods() []Period { return s.periods }

func (s *Snapshot) Len() int { return len(s.chunks) }

// Position returns the load-order index of a chunk.
func (s *Snapshot) Position(id string) (int, bool) {
	i, ok := s.byID[id]
	return i, ok
}

// Chunk returns a pointer into the snapshot; the chunk is shared, not copied.
func (s *Snapshot) Chunk(id string) (*Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.chunks[i], true
}

// Vector returns the embedding for the chunk at position i, or nil.
func (s *Snapshot) Vector(i int) []float64 {
	if i < 0 || i >= len(s.vectors) {
		return nil
	}
	return s.vectors[i]
}

// VectorCache persists chunk embeddings between runs.
type VectorCache interface {
	Get(ctx context.Context, chunkID, contentHash, model string) ([]float64, bool, error)
	Put(ctx context.Context, chunkID, contentHash, model string, vector []float64) error
}

// Indexer embeds chunks and assembles snapshots.
type Indexer struct {
	embedder oracle.Embedder
	cache    VectorCache
	model    string
	logger   *slog.Logger
}

// NewIndexer builds an indexer. cache may be nil.
func NewIndexer(embedder oracle.Embedder, cache VectorCache, model string, logger *slog.Logger) *Indexer {
	return &Indexer{embedder: embedder, cache: cache, model: model, logger: logger}
}

// Build embeds every chunk (cache first) and returns a new snapshot. A chunk
// that cannot be embedded keeps a nil vector and scores zero similarity.
func (ix *Indexer) Build(ctx context.Context, chunks []Chunk, periods []Period) (*Snapshot, error) {
	vectors := make([][]float64, len(chunks))
	var hits, misses, failures int

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("index corpus: %w", err)
		}
		hash := ContentHash(c.Text)

		if ix.cache != nil {
			v, ok, err := ix.cache.Get(ctx, c.ID, hash, ix.model)
			if err != nil {
				ix.logger.Warn("embedding cache read failed", "chunk_id", c.ID, "error", err)
			} else if ok {
				vectors[i] = v
				hits++
				continue
			}
		}

		v, err := ix.embedder.Embed(ctx, c.Text)
		if err != nil {
			failures++
			ix.logger.Warn("chunk embedding failed", "chunk_id", c.ID, "error", err)
			continue
		}
		vectors[i] = v
		misses++

		if ix.cache != nil {
			if err := ix.cache.Put(ctx, c.ID, hash, ix.model, v); err != nil {
				ix.logger.Warn("embedding cache write failed", "chunk_id", c.ID, "error", err)
			}
		}
	}

	snap := NewSnapshot(chunks, vectors, periods)
	ix.logger.Info("corpus indexed",
		"version", snap.Version.String(),
		"chunks", len(chunks),
		"periods", len(periods),
		"cache_hits", hits,
		"embedded", misses,
		"failed", failures,
	)
	return snap, nil
}

// ContentHash fingerprints chunk text for cache invalidation.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Holder publishes the current snapshot. Readers take the pointer once per
// question and keep it for the whole pipeline run.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(s)
	return h
}

func (h *Holder) Current() *Snapshot { return h.current.Load() }

// Swap installs s and returns the snapshot it replaced.
func (h *Holder) Swap(s *Snapshot) *Snapshot { return h.current.Swap(s) }
