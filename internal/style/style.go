// Package style rewrites grounded answers in the corpus owner's voice
// without touching what they claim.
package style

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/twin/internal/gate"
	"github.com/MikeSquared-Agency/twin/internal/oracle"
)

const minStyledLen = 10

const defaultVoice = "A concise and direct communicator who writes about their own work."

const systemPrompt = `You rewrite short answers in a specific person's voice. You never add, remove, or change facts.`

const rephrasePrompt = `Voice guide:
%s

Style rules:
- Use "I" for individual actions and observations.
- Use "we" only when the answer clearly describes a shared decision.
- Keep it concise, direct, work-focused.
- No buzzwords, no hype, no em dashes.
- Preserve all facts, numbers, names, and technical details exactly.
- Do not add any information that is not in the original.

Original answer:
%s`

const rephraseSchema = `{"text": "string (the rewritten answer)"}`

// VoiceFunc returns the current voice guide, usually the identity profile.
// An empty string falls back to a neutral voice.
type VoiceFunc func() string

type Styler struct {
	llm    oracle.Generator
	voice  VoiceFunc
	logger *slog.Logger
}

func New(llm oracle.Generator, voice VoiceFunc, logger *slog.Logger) *Styler {
	return &Styler{llm: llm, voice: voice, logger: logger}
}

type rephraseResponse struct {
	Text *string `json:"text"`
}

// Rephrase rewrites the prose of a non-refused, non-quote answer. The
// citation line, citations, confidence and reason are carried over as is;
// on any failure the original result is returned unchanged.
func (s *Styler) Rephrase(ctx context.Context, res gate.AnswerResult) gate.AnswerResult {
	if res.Refused || res.QuoteOnly {
		return res
	}
	body := gate.StripSources(res.Text)
	if len([]rune(body)) < minStyledLen {
		return res
	}

	voice := defaultVoice
	if s.voice != nil {
		if v := strings.TrimSpace(s.voice()); v != "" {
			voice = v
		}
	}

	raw, err := s.llm.Generate(ctx, oracle.Request{
		System:    systemPrompt,
		Prompt:    fmt.Sprintf(rephrasePrompt, voice, body),
		Schema:    rephraseSchema,
		MaxTokens: 400,
	})
	if err != nil {
		s.logger.Warn("style rewrite failed, keeping original", "error", err)
		return res
	}

	var resp rephraseResponse
	if err := oracle.DecodeStrict(raw, &resp); err != nil || resp.Text == nil {
		s.logger.Warn("style output rejected, keeping original", "error", err)
		return res
	}

	text := gate.StripSources(*resp.Text)
	if text == "" || strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSuffix(gate.RefusalText, "."))) {
		return res
	}

	out := res
	out.Text = gate.WithSources(text, res.Citations)
	return out
}
