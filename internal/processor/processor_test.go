package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/extractor"
	"github.com/MikeSquared-Agency/twin/internal/gate"
	"github.com/MikeSquared-Agency/twin/internal/hermes"
	"github.com/MikeSquared-Agency/twin/internal/intent"
	"github.com/MikeSquared-Agency/twin/internal/oracle"
	"github.com/MikeSquared-Agency/twin/internal/retrieval"
	"github.com/MikeSquared-Agency/twin/internal/slack"
	"github.com/MikeSquared-Agency/twin/internal/store"
	"github.com/MikeSquared-Agency/twin/internal/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type reply struct {
	out string
	err error
}

// scriptedGenerator answers each pipeline stage by the schema it asks for.
type scriptedGenerator struct {
	mu      sync.Mutex
	extract reply
	entail  reply
	answer  reply
	calls   []string
}

func (s *scriptedGenerator) Generate(_ context.Context, req oracle.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(req.Schema, `"chunkId"`):
		s.calls = append(s.calls, "extract")
		return s.extract.out, s.extract.err
	case strings.Contains(req.Schema, `"state"`):
		s.calls = append(s.calls, "entail")
		return s.entail.out, s.entail.err
	case strings.Contains(req.Schema, `"answer"`):
		s.calls = append(s.calls, "answer")
		return s.answer.out, s.answer.err
	}
	return "", errors.New("unexpected request")
}

type constEmbedder struct {
	err   error
	calls int
}

func (c *constEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float64{1, 1}, nil
}

type recordingSinks struct {
	stored   []store.AnswerRecord
	streamed []stream.Record
	gaps     []slack.Gap
	err      error
}

func (r *recordingSinks) WriteAnswer(_ context.Context, rec store.AnswerRecord) error {
	r.stored = append(r.stored, rec)
	return r.err
}

func (r *recordingSinks) PublishAnswer(_ context.Context, rec stream.Record) error {
	r.streamed = append(r.streamed, rec)
	return r.err
}

func (r *recordingSinks) PostGap(_ context.Context, gap slack.Gap) (string, error) {
	r.gaps = append(r.gaps, gap)
	return "1.0", r.err
}

type eventSink struct {
	events []hermes.AnswerEvent
}

func (e *eventSink) PublishAnswer(evt hermes.AnswerEvent) error {
	e.events = append(e.events, evt)
	return nil
}

func testSnapshot() *corpus.Snapshot {
	chunks := []corpus.Chunk{
		{ID: "slack:msg:1", Text: "Shipped the ingest rewrite behind a flag.", Source: "slack.md", Timestamp: time.Date(2025, 10, 14, 9, 30, 0, 0, time.UTC)},
		{ID: "slack:msg:4", Text: "Cold start took 6–9 minutes on the new cluster.", Source: "slack.md", Timestamp: time.Date(2025, 11, 3, 16, 0, 0, 0, time.UTC)},
		{ID: "notes:chunk:0", Text: "Customers were happy with the dashboard redesign.", Source: "notes.md"},
	}
	vectors := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	return corpus.NewSnapshot(chunks, vectors, nil)
}

func newTestProcessor(gen oracle.Generator, emb oracle.Embedder) *Processor {
	logger := discardLogger()
	retriever := retrieval.NewRetriever(emb, retrieval.Config{
		TopK:            6,
		MaxContextChars: 3000,
		TopPeriods:      3,
		MinScore:        0.25,
		PeriodBonus:     0.5,
		ChunkBonus:      0.3,
		PeriodMargin:    7 * 24 * time.Hour,
	}, logger)
	return New(
		corpus.NewHolder(testSnapshot()),
		intent.New(2025),
		retriever,
		extractor.New(gen, logger),
		gate.New(gen, logger),
		logger,
	)
}

func TestAsk_QuarterSummaryAnswered(t *testing.T) {
	gen := &scriptedGenerator{
		extract: reply{out: `[
			{"quote": "Shipped the ingest rewrite", "chunkId": "slack:msg:1"},
			{"quote": "Cold start took 6–9 minutes", "chunkId": "slack:msg:4"}
		]`},
		entail: reply{out: `{"state": "yes", "reason": "both quotes describe Q4 work"}`},
		answer: reply{out: `{"answer": "I shipped the ingest rewrite and got cold start to 6–9 minutes."}`},
	}
	p := newTestProcessor(gen, &constEmbedder{})
	sinks := &recordingSinks{}
	events := &eventSink{}
	p.SetStore(sinks)
	p.SetStream(sinks)
	p.SetNotifier(sinks)
	p.SetEvents(events)

	out := p.Ask(context.Background(), "What was I working on in Q4 2025?")

	require.Equal(t, intent.ModeSummary, out.Intent.Mode)
	require.NotNil(t, out.Intent.Window)
	require.False(t, out.Result.Refused)
	require.Equal(t, gate.ConfidenceHigh, out.Result.Confidence)
	require.Equal(t, []string{"slack:msg:1", "slack:msg:4"}, out.Result.Citations)
	require.True(t, strings.HasSuffix(out.Result.Text, "Sources: slack:msg:1, slack:msg:4"))
	require.Equal(t, []string{"extract", "entail", "answer"}, gen.calls)
	require.Equal(t, p.Snapshot().Version, out.SnapshotVersion)

	// Dated chunks in the quarter outrank the undated note.
	require.Equal(t, "notes:chunk:0", out.Retrieved[len(out.Retrieved)-1].Chunk.ID)

	require.Len(t, sinks.stored, 1)
	rec := sinks.stored[0]
	require.Equal(t, out.ID, rec.ID)
	require.NotNil(t, rec.WindowStart)
	require.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), *rec.WindowStart)
	require.Equal(t, "YES", rec.Verdict)
	require.Len(t, rec.Evidence, 2)

	require.Len(t, sinks.streamed, 1)
	require.Equal(t, out.ID.String(), sinks.streamed[0].AnswerID)
	require.Len(t, events.events, 1)
	require.Empty(t, sinks.gaps)
}

func TestAsk_UnknownFactRefused(t *testing.T) {
	gen := &scriptedGenerator{extract: reply{out: `[]`}}
	p := newTestProcessor(gen, &constEmbedder{})
	sinks := &recordingSinks{}
	p.SetNotifier(sinks)

	out := p.Ask(context.Background(), "What is my favorite color?")

	require.Equal(t, intent.ModeFact, out.Intent.Mode)
	require.True(t, out.Result.Refused)
	require.Equal(t, gate.RefusalText, out.Result.Text)
	require.Equal(t, gate.ReasonNoEvidence, out.Result.Reason)
	require.Equal(t, gate.ConfidenceNone, out.Result.Confidence)
	require.Empty(t, out.Result.Citations)
	require.Equal(t, []string{"extract"}, gen.calls)

	require.Len(t, sinks.gaps, 1)
	require.Equal(t, "What is my favorite color?", sinks.gaps[0].Question)
	require.Equal(t, gate.ReasonNoEvidence, sinks.gaps[0].Reason)
}

func TestAsk_ContradictedEvidenceRefused(t *testing.T) {
	gen := &scriptedGenerator{
		extract: reply{out: `[{"quote": "Customers were happy with the dashboard", "chunkId": "notes:chunk:0"}]`},
		entail:  reply{out: `{"state": "no", "reason": "evidence says customers were happy"}`},
	}
	p := newTestProcessor(gen, &constEmbedder{})

	out := p.Ask(context.Background(), "Did customers complain about the dashboard?")

	require.True(t, out.Result.Refused)
	require.Equal(t, gate.ReasonContradicted, out.Result.Reason)
	require.Equal(t, gate.VerdictNo, out.Result.Entailment.Verdict)
	require.NotContains(t, gen.calls, "answer")
}

func TestAsk_FactFromTwoChunksIsHighConfidence(t *testing.T) {
	gen := &scriptedGenerator{
		extract: reply{out: `[
			{"quote": "Cold start took 6–9 minutes", "chunkId": "slack:msg:4"},
			{"quote": "Shipped the ingest rewrite", "chunkId": "slack:msg:1"}
		]`},
		entail: reply{out: `{"state": "yes", "reason": "states the duration"}`},
		answer: reply{out: `{"answer": "Cold start took 6–9 minutes."}`},
	}
	p := newTestProcessor(gen, &constEmbedder{})

	out := p.Ask(context.Background(), "How long did cold start take?")

	require.Equal(t, intent.ModeFact, out.Intent.Mode)
	require.False(t, out.Result.Refused)
	require.Equal(t, gate.ConfidenceHigh, out.Result.Confidence)
	require.Equal(t, []string{"slack:msg:4", "slack:msg:1"}, out.Result.Citations)
	require.Equal(t, []gate.State{gate.StateStart, gate.StateEntailment, gate.StateAnswered}, out.Result.Path)
}

func TestAsk_SensitiveQuestionSkipsPipeline(t *testing.T) {
	gen := &scriptedGenerator{}
	emb := &constEmbedder{}
	p := newTestProcessor(gen, emb)
	sinks := &recordingSinks{}
	p.SetStore(sinks)
	p.SetNotifier(sinks)

	out := p.Ask(context.Background(), "What is my AWS secret key?")

	require.True(t, out.Result.Refused)
	require.Equal(t, gate.ReasonPolicy, out.Result.Reason)
	require.Zero(t, emb.calls)
	require.Empty(t, gen.calls)
	require.Len(t, sinks.stored, 1)
	require.Empty(t, sinks.gaps, "policy refusals are not posted")
}

func TestAsk_StageFailuresNameTheStage(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		gen := &scriptedGenerator{}
		p := newTestProcessor(gen, &constEmbedder{err: oracle.Unavailable("ollama", errors.New("connection refused"))})

		out := p.Ask(context.Background(), "How long did cold start take?")
		require.True(t, out.Result.Refused)
		require.Equal(t, "embedding unavailable.", out.Result.Reason)
		require.Equal(t, "embedding", out.FailedStage)
		require.Empty(t, gen.calls)
	})

	t.Run("extraction", func(t *testing.T) {
		gen := &scriptedGenerator{extract: reply{err: oracle.Unavailable("anthropic", context.DeadlineExceeded)}}
		p := newTestProcessor(gen, &constEmbedder{})

		out := p.Ask(context.Background(), "How long did cold start take?")
		require.True(t, out.Result.Refused)
		require.Equal(t, "evidence extraction unavailable.", out.Result.Reason)
		require.Equal(t, []gate.State{gate.StateStart, gate.StateRefused}, out.Result.Path)
	})
}

func TestAsk_SinkFailuresDoNotChangeResult(t *testing.T) {
	gen := &scriptedGenerator{extract: reply{out: `[]`}}
	p := newTestProcessor(gen, &constEmbedder{})
	sinks := &recordingSinks{err: errors.New("down")}
	p.SetStore(sinks)
	p.SetStream(sinks)
	p.SetNotifier(sinks)

	out := p.Ask(context.Background(), "What is my favorite color?")
	require.Equal(t, gate.ReasonNoEvidence, out.Result.Reason)
	require.Len(t, sinks.stored, 1)
	require.Len(t, sinks.streamed, 1)
	require.Len(t, sinks.gaps, 1)
}

type upperStyler struct{ calls int }

func (u *upperStyler) Rephrase(_ context.Context, res gate.AnswerResult) gate.AnswerResult {
	u.calls++
	if res.Refused {
		return res
	}
	res.Text = strings.ToUpper(res.Text)
	return res
}

func TestAsk_StylerApplied(t *testing.T) {
	gen := &scriptedGenerator{
		extract: reply{out: `[{"quote": "Cold start took 6–9 minutes", "chunkId": "slack:msg:4"}]`},
		entail:  reply{out: `{"state": "yes", "reason": "ok"}`},
		answer:  reply{out: `{"answer": "Cold start took 6–9 minutes."}`},
	}
	p := newTestProcessor(gen, &constEmbedder{})
	s := &upperStyler{}
	p.SetStyler(s)

	out := p.Ask(context.Background(), "How long did cold start take?")
	require.Equal(t, 1, s.calls)
	require.True(t, strings.HasPrefix(out.Result.Text, "COLD START"))
	require.Equal(t, gate.ConfidenceMedium, out.Result.Confidence)
}

func TestHandleQuestion(t *testing.T) {
	gen := &scriptedGenerator{extract: reply{out: `[]`}}
	p := newTestProcessor(gen, &constEmbedder{})
	events := &eventSink{}
	p.SetEvents(events)

	data, _ := json.Marshal(hermes.QuestionEvent{RequestID: "req-7", Question: "What is my favorite color?"})
	p.HandleQuestion(hermes.SubjectQuestionAsked, data)

	require.Len(t, events.events, 1)
	evt := events.events[0]
	require.Equal(t, "req-7", evt.RequestID)
	require.True(t, evt.Refused)
	require.Equal(t, gate.RefusalText, evt.Answer)

	p.HandleQuestion(hermes.SubjectQuestionAsked, []byte("{not json"))
	p.HandleQuestion(hermes.SubjectQuestionAsked, []byte(`{"request_id": "req-8", "question": "  "}`))
	require.Len(t, events.events, 1)
}
