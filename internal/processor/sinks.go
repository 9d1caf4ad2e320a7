package processor

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/twin/internal/gate"
	"github.com/MikeSquared-Agency/twin/internal/hermes"
	"github.com/MikeSquared-Agency/twin/internal/slack"
	"github.com/MikeSquared-Agency/twin/internal/store"
	"github.com/MikeSquared-Agency/twin/internal/stream"
)

const sinkTimeout = 10 * time.Second

type AnswerStore interface {
	WriteAnswer(ctx context.Context, rec store.AnswerRecord) error
}

type AnswerStream interface {
	PublishAnswer(ctx context.Context, rec stream.Record) error
}

type EventPublisher interface {
	PublishAnswer(evt hermes.AnswerEvent) error
}

type GapNotifier interface {
	PostGap(ctx context.Context, gap slack.Gap) (string, error)
}

type sinks struct {
	store    AnswerStore
	stream   AnswerStream
	events   EventPublisher
	notifier GapNotifier
}

func (p *Processor) SetStore(s AnswerStore)     { p.sinks.store = s }
func (p *Processor) SetStream(s AnswerStream)   { p.sinks.stream = s }
func (p *Processor) SetEvents(e EventPublisher) { p.sinks.events = e }
func (p *Processor) SetNotifier(n GapNotifier)  { p.sinks.notifier = n }

// record hands the outcome to every configured sink. Sink failures are
// logged and never change the result.
func (p *Processor) record(ctx context.Context, out *Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if p.sinks.store != nil {
		if err := p.sinks.store.WriteAnswer(ctx, toAnswerRecord(out)); err != nil {
			p.logger.Error("failed to store answer", "answer_id", out.ID, "error", err)
		}
	}

	if p.sinks.stream != nil {
		if err := p.sinks.stream.PublishAnswer(ctx, toStreamRecord(out)); err != nil {
			p.logger.Error("failed to stream answer", "answer_id", out.ID, "error", err)
		}
	}

	if p.sinks.events != nil {
		if err := p.sinks.events.PublishAnswer(toAnswerEvent(out)); err != nil {
			p.logger.Error("failed to publish answer event", "answer_id", out.ID, "error", err)
		}
	}

	// Policy refusals stay out of Slack: the question itself is the
	// sensitive part.
	if p.sinks.notifier != nil && out.Result.Refused && out.Result.Reason != gate.ReasonPolicy {
		if _, err := p.sinks.notifier.PostGap(ctx, toGap(out)); err != nil {
			p.logger.Error("failed to post knowledge gap", "answer_id", out.ID, "error", err)
		}
	}
}

func toAnswerRecord(out *Outcome) store.AnswerRecord {
	rec := store.AnswerRecord{
		ID:              out.ID,
		RequestID:       out.RequestID,
		Question:        out.Question,
		Mode:            string(out.Intent.Mode),
		Refused:         out.Result.Refused,
		Text:            out.Result.Text,
		Confidence:      string(out.Result.Confidence),
		Reason:          out.Result.Reason,
		SnapshotVersion: out.SnapshotVersion,
		DurationMS:      out.Duration.Milliseconds(),
		CreatedAt:       out.AskedAt,
		Citations:       out.Result.Citations,
	}
	if w := out.Intent.Window; w != nil {
		if !w.Start.IsZero() {
			start := w.Start
			rec.WindowStart = &start
		}
		if !w.End.IsZero() {
			end := w.End
			rec.WindowEnd = &end
		}
	}
	if ent := out.Result.Entailment; ent != nil {
		rec.Verdict = string(ent.Verdict)
		rec.VerdictReason = ent.Reason
	}
	for _, it := range out.Evidence {
		rec.Evidence = append(rec.Evidence, store.EvidenceRecord{ChunkID: it.ChunkID, Quote: it.Quote})
	}
	return rec
}

func toStreamRecord(out *Outcome) stream.Record {
	return stream.Record{
		AnswerID:        out.ID.String(),
		Question:        out.Question,
		Mode:            string(out.Intent.Mode),
		Refused:         out.Result.Refused,
		Confidence:      string(out.Result.Confidence),
		Reason:          out.Result.Reason,
		Citations:       out.Result.Citations,
		Periods:         out.Periods,
		Candidates:      out.Candidates,
		Evidence:        len(out.Evidence),
		FailedStage:     out.FailedStage,
		SnapshotVersion: out.SnapshotVersion.String(),
		DurationMS:      out.Duration.Milliseconds(),
		AnsweredAt:      out.AskedAt.Add(out.Duration),
	}
}

func toAnswerEvent(out *Outcome) hermes.AnswerEvent {
	return hermes.AnswerEvent{
		AnswerID:        out.ID.String(),
		RequestID:       out.RequestID,
		Question:        out.Question,
		Mode:            string(out.Intent.Mode),
		Refused:         out.Result.Refused,
		Answer:          out.Result.Text,
		Citations:       out.Result.Citations,
		Confidence:      string(out.Result.Confidence),
		Reason:          out.Result.Reason,
		SnapshotVersion: out.SnapshotVersion.String(),
		AnsweredAt:      out.AskedAt.Add(out.Duration),
	}
}

func toGap(out *Outcome) slack.Gap {
	return slack.Gap{
		AnswerID:   out.ID.String(),
		Question:   out.Question,
		Mode:       string(out.Intent.Mode),
		Reason:     out.Result.Reason,
		Periods:    out.Periods,
		Candidates: out.Candidates,
		Evidence:   len(out.Evidence),
		AskedAt:    out.AskedAt,
	}
}
