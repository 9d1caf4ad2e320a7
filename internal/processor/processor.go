package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/extractor"
	"github.com/MikeSquared-Agency/twin/internal/gate"
	"github.com/MikeSquared-Agency/twin/internal/hermes"
	"github.com/MikeSquared-Agency/twin/internal/intent"
	"github.com/MikeSquared-Agency/twin/internal/retrieval"
)

// Styler rewrites an answer's prose. It must not change citations,
// confidence or refusal.
type Styler interface {
	Rephrase(ctx context.Context, res gate.AnswerResult) gate.AnswerResult
}

// Outcome is everything one question produced, from intent to sinks.
type Outcome struct {
	ID              uuid.UUID          `json:"id"`
	RequestID       string             `json:"request_id,omitempty"`
	Question        string             `json:"question"`
	Intent          intent.Intent      `json:"intent"`
	Periods         []string           `json:"periods"`
	Candidates      int                `json:"candidates"`
	Retrieved       []retrieval.Result `json:"retrieved"`
	Evidence        []extractor.Item   `json:"evidence"`
	Result          gate.AnswerResult  `json:"result"`
	FailedStage     string             `json:"failed_stage,omitempty"`
	SnapshotVersion uuid.UUID          `json:"snapshot_version"`
	AskedAt         time.Time          `json:"asked_at"`
	Duration        time.Duration      `json:"duration"`
}

// Processor orchestrates the question pipeline against the current corpus
// snapshot and fans every outcome out to the configured sinks.
type Processor struct {
	holder     *corpus.Holder
	understand *intent.Understander
	retriever  *retrieval.Retriever
	extractor  *extractor.Extractor
	gate       *gate.Gate
	logger     *slog.Logger

	styler Styler
	sinks  sinks
}

func New(holder *corpus.Holder, u *intent.Understander, r *retrieval.Retriever, ext *extractor.Extractor, g *gate.Gate, logger *slog.Logger) *Processor {
	return &Processor{
		holder:     holder,
		understand: u,
		retriever:  r,
		extractor:  ext,
		gate:       g,
		logger:     logger,
	}
}

func (p *Processor) SetStyler(s Styler) { p.styler = s }

// Snapshot returns the snapshot new questions are answered against.
func (p *Processor) Snapshot() *corpus.Snapshot { return p.holder.Current() }

// Ask answers one question. It never fails: every stage failure becomes a
// refusal naming the stage.
func (p *Processor) Ask(ctx context.Context, question string) *Outcome {
	return p.AskRequest(ctx, "", question)
}

// AskRequest is Ask with a caller-supplied correlation ID.
func (p *Processor) AskRequest(ctx context.Context, requestID, question string) *Outcome {
	start := time.Now()
	snap := p.holder.Current()

	out := &Outcome{
		ID:              uuid.New(),
		RequestID:       requestID,
		Question:        question,
		SnapshotVersion: snap.Version,
		AskedAt:         start.UTC(),
	}
	out.Result = p.run(ctx, snap, out)
	out.Duration = time.Since(start)

	p.logger.Info("question answered",
		"answer_id", out.ID,
		"mode", out.Intent.Mode,
		"window", windowAttr(out.Intent.Window),
		"topics", out.Intent.Topics,
		"periods", out.Periods,
		"candidates", out.Candidates,
		"retrieved", len(out.Retrieved),
		"evidence", len(out.Evidence),
		"refused", out.Result.Refused,
		"confidence", out.Result.Confidence,
		"reason", out.Result.Reason,
		"duration", out.Duration,
	)

	p.record(ctx, out)
	return out
}

func (p *Processor) run(ctx context.Context, snap *corpus.Snapshot, out *Outcome) gate.AnswerResult {
	out.Intent = p.understand.Parse(out.Question)

	if gate.Sensitive(out.Question) {
		return p.gate.Decide(ctx, out.Question, out.Intent.Mode, nil)
	}

	sel, err := p.retriever.Retrieve(ctx, snap, out.Question, out.Intent)
	if err != nil {
		p.logger.Warn("retrieval failed", "answer_id", out.ID, "error", err)
		return p.failed(out, "embedding")
	}
	out.Periods = sel.Periods
	out.Candidates = sel.Candidates
	out.Retrieved = sel.Results

	items, err := p.extractor.Extract(ctx, out.Question, out.Intent.Mode, sel.Results)
	if err != nil {
		p.logger.Warn("extraction failed", "answer_id", out.ID, "error", err)
		return p.failed(out, "evidence extraction")
	}
	out.Evidence = items

	res := p.gate.Decide(ctx, out.Question, out.Intent.Mode, items)
	if p.styler != nil {
		res = p.styler.Rephrase(ctx, res)
	}
	return res
}

func (p *Processor) failed(out *Outcome, stage string) gate.AnswerResult {
	out.FailedStage = stage
	res := gate.Refusal(gate.Unavailable(stage))
	res.Path = []gate.State{gate.StateStart, gate.StateRefused}
	return res
}

// HandleQuestion is the NATS handler for twin.question.asked. The answer goes
// out through the event sink.
func (p *Processor) HandleQuestion(subject string, data []byte) {
	var evt hermes.QuestionEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse question event", "subject", subject, "error", err)
		return
	}
	if strings.TrimSpace(evt.Question) == "" {
		p.logger.Warn("empty question event ignored", "request_id", evt.RequestID)
		return
	}

	p.logger.Info("question received", "subject", subject, "request_id", evt.RequestID)
	p.AskRequest(context.Background(), evt.RequestID, evt.Question)
}

func windowAttr(w *corpus.Window) string {
	if w == nil {
		return ""
	}
	return w.String()
}
