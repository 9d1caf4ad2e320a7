package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/gate"
	"github.com/MikeSquared-Agency/twin/internal/processor"
	"github.com/MikeSquared-Agency/twin/internal/store"
)

const maxQuestionBytes = 8 << 10

type AskRequest struct {
	Question string `json:"question"`
	Debug    bool   `json:"debug"`
}

type AskResponse struct {
	ID         uuid.UUID `json:"id"`
	Refused    bool      `json:"refused"`
	Answer     string    `json:"answer"`
	Citations  []string  `json:"citations"`
	Confidence string    `json:"confidence"`
	Reason     string    `json:"reason"`
	Trace      *Trace    `json:"trace,omitempty"`
}

// Trace exposes how an answer was reached.
type Trace struct {
	Mode            string           `json:"mode"`
	Window          *corpus.Window   `json:"window,omitempty"`
	Topics          []string         `json:"topics"`
	Periods         []string         `json:"periods"`
	Candidates      int              `json:"candidates"`
	Retrieved       []TraceChunk     `json:"retrieved"`
	Evidence        []TraceQuote     `json:"evidence"`
	Entailment      *gate.Entailment `json:"entailment,omitempty"`
	Path            []gate.State     `json:"path"`
	QuoteOnly       bool             `json:"quote_only"`
	FailedStage     string           `json:"failed_stage,omitempty"`
	SnapshotVersion uuid.UUID        `json:"snapshot_version"`
	DurationMS      int64            `json:"duration_ms"`
}

type TraceChunk struct {
	ChunkID   string     `json:"chunk_id"`
	Source    string     `json:"source"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Score     float64    `json:"score"`
}

type TraceQuote struct {
	ChunkID string `json:"chunk_id"`
	Quote   string `json:"quote"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	out := s.asker.AskRequest(r.Context(), middleware.GetReqID(r.Context()), req.Question)
	resp := AskResponse{
		ID:         out.ID,
		Refused:    out.Result.Refused,
		Answer:     out.Result.Text,
		Citations:  out.Result.Citations,
		Confidence: string(out.Result.Confidence),
		Reason:     out.Result.Reason,
	}
	if req.Debug {
		resp.Trace = traceOf(out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func traceOf(out *processor.Outcome) *Trace {
	t := &Trace{
		Mode:            string(out.Intent.Mode),
		Window:          out.Intent.Window,
		Topics:          out.Intent.Topics,
		Periods:         out.Periods,
		Candidates:      out.Candidates,
		Retrieved:       make([]TraceChunk, 0, len(out.Retrieved)),
		Evidence:        make([]TraceQuote, 0, len(out.Evidence)),
		Entailment:      out.Result.Entailment,
		Path:            out.Result.Path,
		QuoteOnly:       out.Result.QuoteOnly,
		FailedStage:     out.FailedStage,
		SnapshotVersion: out.SnapshotVersion,
		DurationMS:      out.Duration.Milliseconds(),
	}
	for _, res := range out.Retrieved {
		tc := TraceChunk{ChunkID: res.Chunk.ID, Source: res.Chunk.Source, Score: res.Score}
		if !res.Chunk.Timestamp.IsZero() {
			ts := res.Chunk.Timestamp
			tc.Timestamp = &ts
		}
		t.Retrieved = append(t.Retrieved, tc)
	}
	for _, it := range out.Evidence {
		t.Evidence = append(t.Evidence, TraceQuote{ChunkID: it.ChunkID, Quote: it.Quote})
	}
	return t
}

func (s *Server) getAnswer(w http.ResponseWriter, r *http.Request) {
	if s.answers == nil {
		writeError(w, http.StatusNotImplemented, "answer store not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := s.answers.GetAnswer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "answer not found")
		return
	}
	if err != nil {
		s.logger.Error("get answer failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load answer")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) searchChunks(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusNotImplemented, "search not configured")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := s.search.Search(ctx, query, size)
	if err != nil {
		s.logger.Error("chunk search failed", "error", err)
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
