package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/extractor"
	"github.com/MikeSquared-Agency/twin/internal/gate"
	"github.com/MikeSquared-Agency/twin/internal/intent"
	"github.com/MikeSquared-Agency/twin/internal/processor"
	"github.com/MikeSquared-Agency/twin/internal/retrieval"
	"github.com/MikeSquared-Agency/twin/internal/search"
	"github.com/MikeSquared-Agency/twin/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAsker struct {
	snap      *corpus.Snapshot
	questions []string
	requestID string
	outcome   *processor.Outcome
}

func (s *stubAsker) AskRequest(_ context.Context, requestID, question string) *processor.Outcome {
	s.questions = append(s.questions, question)
	s.requestID = requestID
	out := *s.outcome
	out.Question = question
	return &out
}

func (s *stubAsker) Snapshot() *corpus.Snapshot { return s.snap }

func answeredOutcome() *processor.Outcome {
	chunk := corpus.Chunk{ID: "slack:msg:4", Source: "slack.md", Timestamp: time.Date(2025, 11, 3, 16, 0, 0, 0, time.UTC)}
	return &processor.Outcome{
		ID:        uuid.MustParse("0b5c3f9e-1111-2222-3333-444455556666"),
		Intent:    intent.Intent{Mode: intent.ModeFact, Topics: []string{"cold", "start"}},
		Periods:   []string{"2025-W44"},
		Retrieved: []retrieval.Result{{Chunk: &chunk, Score: 0.91}},
		Evidence:  []extractor.Item{{ChunkID: "slack:msg:4", Quote: "Cold start took 6–9 minutes", Verified: true}},
		Result: gate.AnswerResult{
			Text:       "Cold start took 6–9 minutes.\n\nSources: slack:msg:4",
			Citations:  []string{"slack:msg:4"},
			Confidence: gate.ConfidenceMedium,
			Reason:     "answered from 1 verified quote(s) across 1 chunk(s).",
			Entailment: &gate.Entailment{Verdict: gate.VerdictYes, Reason: "states the duration"},
			Path:       []gate.State{gate.StateStart, gate.StateEntailment, gate.StateAnswered},
		},
		Duration: 420 * time.Millisecond,
	}
}

func newTestServer(token string) (*Server, *stubAsker) {
	asker := &stubAsker{
		snap:    corpus.NewSnapshot([]corpus.Chunk{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}}, nil, []corpus.Period{{ID: "2025-W44"}}),
		outcome: answeredOutcome(),
	}
	return NewServer(8760, token, asker, discardLogger()), asker
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer("")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, asker := newTestServer("")

	req := httptest.NewRequest("GET", "/api/v1/twin/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["agent"] != "twin" {
		t.Errorf("expected agent twin, got %v", body["agent"])
	}
	if body["chunks"] != float64(2) || body["periods"] != float64(1) {
		t.Errorf("unexpected counts: %v", body)
	}
	if body["snapshot_version"] != asker.snap.Version.String() {
		t.Errorf("expected snapshot version %s, got %v", asker.snap.Version, body["snapshot_version"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer("")

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAsk(t *testing.T) {
	srv, asker := newTestServer("")

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{"question": "How long did cold start take?"}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp AskResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Refused || resp.Confidence != "MEDIUM" || len(resp.Citations) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Trace != nil {
		t.Error("expected no trace without debug")
	}
	if len(asker.questions) != 1 || asker.questions[0] != "How long did cold start take?" {
		t.Errorf("unexpected questions: %v", asker.questions)
	}
	if asker.requestID == "" {
		t.Error("expected request id from middleware")
	}
}

func TestAsk_DebugTrace(t *testing.T) {
	srv, _ := newTestServer("")

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{"question": "How long did cold start take?", "debug": true}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	var resp AskResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Trace == nil {
		t.Fatal("expected trace with debug")
	}
	tr := resp.Trace
	if tr.Mode != "FACT" || len(tr.Retrieved) != 1 || tr.Retrieved[0].ChunkID != "slack:msg:4" {
		t.Errorf("unexpected trace: %+v", tr)
	}
	if len(tr.Evidence) != 1 || tr.Entailment == nil || tr.Entailment.Verdict != gate.VerdictYes {
		t.Errorf("unexpected trace evidence: %+v", tr)
	}
	if len(tr.Path) != 3 || tr.DurationMS != 420 {
		t.Errorf("unexpected trace path/duration: %+v", tr)
	}
}

func TestAsk_BadRequests(t *testing.T) {
	srv, asker := newTestServer("")

	for _, body := range []string{`{"question": "   "}`, `{}`, `not json`} {
		req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
	if len(asker.questions) != 0 {
		t.Errorf("expected no pipeline runs, got %d", len(asker.questions))
	}
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer("s3cret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"no scheme", "s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/twin/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}

	// Health stays open.
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected open health, got %d", w.Code)
	}
}

type stubAnswers struct {
	rec *store.AnswerRecord
	err error
}

func (s *stubAnswers) GetAnswer(_ context.Context, id uuid.UUID) (*store.AnswerRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.rec == nil || s.rec.ID != id {
		return nil, store.ErrNotFound
	}
	return s.rec, nil
}

func TestGetAnswer(t *testing.T) {
	srv, _ := newTestServer("")

	req := httptest.NewRequest("GET", "/api/v1/answers/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without store, got %d", w.Code)
	}

	rec := &store.AnswerRecord{ID: uuid.New(), Question: "What is my favorite color?", Refused: true, Citations: []string{}}
	srv.SetAnswers(&stubAnswers{rec: rec})

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/answers/" + rec.ID.String(), http.StatusOK},
		{"/api/v1/answers/" + uuid.NewString(), http.StatusNotFound},
		{"/api/v1/answers/not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, w.Code)
		}
	}

	srv.SetAnswers(&stubAnswers{err: errors.New("pool closed")})
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/answers/"+rec.ID.String(), nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

type stubSearch struct {
	query string
	size  int
}

func (s *stubSearch) Search(_ context.Context, query string, size int) (*search.Result, error) {
	s.query, s.size = query, size
	return &search.Result{Total: 1, Hits: []search.Hit{{Document: search.Document{ChunkID: "slack:msg:4"}, Score: 2}}}, nil
}

func TestSearchChunks(t *testing.T) {
	srv, _ := newTestServer("")

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/chunks/search?q=cold", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without search, got %d", w.Code)
	}

	s := &stubSearch{}
	srv.SetSearch(s)

	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/chunks/search?q=cold+start&size=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if s.query != "cold start" || s.size != 5 {
		t.Errorf("unexpected search args: %q %d", s.query, s.size)
	}

	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/chunks/search", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without q, got %d", w.Code)
	}
}
