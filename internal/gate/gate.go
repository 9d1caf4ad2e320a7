// Package gate decides whether verified evidence is enough to answer a
// question, and produces either the answer or a refusal.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/extractor"
	"github.com/MikeSquared-Agency/twin/internal/intent"
	"github.com/MikeSquared-Agency/twin/internal/oracle"
)

// SourcesPrefix starts the citation line appended to every answer.
const SourcesPrefix = "Sources: "

const maxQuoteLines = 3

type Gate struct {
	llm    oracle.Generator
	logger *slog.Logger
}

func New(llm oracle.Generator, logger *slog.Logger) *Gate {
	return &Gate{llm: llm, logger: logger}
}

// Decide runs one question through the decision machine. It makes at most
// one entailment call and one generation call, and always returns a
// well-formed result.
func (g *Gate) Decide(ctx context.Context, question string, mode intent.Mode, evidence []extractor.Item) AnswerResult {
	m := newMachine()
	items := verifiedOnly(evidence)

	if Sensitive(question) {
		return g.finish(m, Refusal(ReasonPolicy))
	}
	if len(items) == 0 {
		return g.finish(m, Refusal(ReasonNoEvidence))
	}
	if mode == intent.ModeSummary && (len(items) < 2 || len(citationsOf(items)) < 2) {
		return g.finish(m, Refusal(ReasonInsufficient))
	}

	ent := g.entail(ctx, question, items)
	if err := m.transition(StateEntailment); err != nil {
		return g.broken(m, err)
	}

	var res AnswerResult
	switch Admit(mode, ent.Verdict) {
	case AllowNormal:
		res = g.answer(ctx, question, mode, items)
	case AllowCautious:
		res = quoteOnly(items)
	default:
		switch {
		case ent.Verdict == VerdictNo:
			res = Refusal(ReasonContradicted)
		case ent.Failed:
			res = Refusal(ent.Reason)
		default:
			res = Refusal(ReasonUnconfirmed)
		}
	}

	if !res.Refused && !fromIdentity(items) && LeaksCredential(res.Text) {
		g.logger.Warn("answer blocked by credential check")
		res = Refusal(ReasonPolicy)
	}

	res.Entailment = &ent
	return g.finish(m, res)
}

// finish moves the machine to its terminal state and stamps the path.
func (g *Gate) finish(m *machine, res AnswerResult) AnswerResult {
	to := StateAnswered
	if res.Refused {
		to = StateRefused
	}
	if err := m.transition(to); err != nil {
		return g.broken(m, err)
	}
	res.Path = m.path
	return res
}

func (g *Gate) broken(m *machine, err error) AnswerResult {
	g.logger.Error("gate state machine violated", "error", err, "path", m.path)
	res := Refusal("internal decision error.")
	res.Path = m.path
	return res
}

type entailmentResponse struct {
	State  *string `json:"state"`
	Reason *string `json:"reason"`
}

// entail never returns NO for a failure: any transport or schema problem is
// UNKNOWN.
func (g *Gate) entail(ctx context.Context, question string, items []extractor.Item) Entailment {
	raw, err := g.llm.Generate(ctx, oracle.Request{
		System:    entailmentSystem,
		Prompt:    fmt.Sprintf(entailmentPrompt, question, renderEvidence(items, false)),
		Schema:    entailmentSchema,
		MaxTokens: 150,
	})
	if err != nil {
		g.logger.Warn("entailment call failed", "error", err)
		if errors.Is(err, oracle.ErrSchema) {
			return failOpen("entailment output did not match schema.")
		}
		return failOpen(Unavailable("entailment"))
	}

	var resp entailmentResponse
	if err := oracle.DecodeStrict(raw, &resp); err != nil || resp.State == nil || resp.Reason == nil {
		g.logger.Warn("entailment output rejected", "error", err, "raw_len", len(raw))
		return failOpen("entailment output did not match schema.")
	}

	switch *resp.State {
	case "yes":
		return Entailment{Verdict: VerdictYes, Reason: *resp.Reason}
	case "no":
		return Entailment{Verdict: VerdictNo, Reason: *resp.Reason}
	case "unknown":
		return Entailment{Verdict: VerdictUnknown, Reason: *resp.Reason}
	default:
		g.logger.Warn("entailment state out of range", "state", *resp.State)
		return failOpen("entailment output did not match schema.")
	}
}

func failOpen(reason string) Entailment {
	return Entailment{Verdict: VerdictUnknown, Reason: reason, Failed: true}
}

type answerResponse struct {
	Answer *string `json:"answer"`
}

func (g *Gate) answer(ctx context.Context, question string, mode intent.Mode, items []extractor.Item) AnswerResult {
	tmpl := factPrompt
	if mode == intent.ModeSummary {
		tmpl = summaryPrompt
	}

	raw, err := g.llm.Generate(ctx, oracle.Request{
		System:    answerSystem,
		Prompt:    fmt.Sprintf(tmpl, question, renderEvidence(items, true)),
		Schema:    answerSchema,
		MaxTokens: 600,
	})
	if err != nil {
		g.logger.Warn("answer generation failed", "error", err)
		return Refusal(Unavailable("answer generation"))
	}

	var resp answerResponse
	if err := oracle.DecodeStrict(raw, &resp); err != nil || resp.Answer == nil {
		g.logger.Warn("answer output rejected", "error", err, "raw_len", len(raw))
		return Refusal(Unavailable("answer generation"))
	}

	text := StripSources(*resp.Answer)
	if text == "" {
		return Refusal(Unavailable("answer generation"))
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSuffix(RefusalText, "."))) {
		return Refusal(ReasonDeclined)
	}

	citations := citationsOf(items)
	conf := ConfidenceMedium
	if len(citations) >= 2 {
		conf = ConfidenceHigh
	}
	return AnswerResult{
		Text:       WithSources(text, citations),
		Citations:  citations,
		Confidence: conf,
		Reason:     fmt.Sprintf("answered from %d verified quote(s) across %d chunk(s).", len(items), len(citations)),
	}
}

// quoteOnly answers with the evidence itself: up to three quotes from
// distinct chunks, no generated prose.
func quoteOnly(items []extractor.Item) AnswerResult {
	seen := make(map[string]bool)
	var lines, citations []string
	for _, it := range items {
		if seen[it.ChunkID] || len(lines) == maxQuoteLines {
			continue
		}
		seen[it.ChunkID] = true
		quote := it.Quote
		if it.ChunkID != corpus.IdentityID {
			quote = RedactEmails(quote)
		}
		lines = append(lines, "- "+quote)
		citations = append(citations, it.ChunkID)
	}

	return AnswerResult{
		Text:       WithSources("From my data:\n"+strings.Join(lines, "\n"), citations),
		Citations:  citations,
		Confidence: ConfidenceMedium,
		Reason:     "entailment unclear; answering with quotes only.",
		QuoteOnly:  true,
	}
}

func verifiedOnly(evidence []extractor.Item) []extractor.Item {
	out := make([]extractor.Item, 0, len(evidence))
	for _, it := range evidence {
		if it.Verified {
			out = append(out, it)
		}
	}
	return out
}

// citationsOf returns chunk IDs deduplicated in first-seen order.
func citationsOf(items []extractor.Item) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, it := range items {
		if !seen[it.ChunkID] {
			seen[it.ChunkID] = true
			out = append(out, it.ChunkID)
		}
	}
	return out
}

func fromIdentity(items []extractor.Item) bool {
	for _, it := range items {
		if it.ChunkID == corpus.IdentityID {
			return true
		}
	}
	return false
}

func renderEvidence(items []extractor.Item, withIDs bool) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it.Quote)
		if withIDs {
			b.WriteString(" (from ")
			b.WriteString(it.ChunkID)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// WithSources appends the citation line.
func WithSources(text string, citations []string) string {
	return text + "\n\n" + SourcesPrefix + strings.Join(citations, ", ")
}

// StripSources removes any citation lines from text.
func StripSources(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), strings.TrimSpace(SourcesPrefix)) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
