// Package pipeline assembles the question pipeline from configuration. The
// service and the one-shot commands share it.
package pipeline

import (
	"log/slog"

	"github.com/MikeSquared-Agency/twin/internal/anthropic"
	"github.com/MikeSquared-Agency/twin/internal/config"
	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/extractor"
	"github.com/MikeSquared-Agency/twin/internal/gate"
	"github.com/MikeSquared-Agency/twin/internal/intent"
	"github.com/MikeSquared-Agency/twin/internal/ollama"
	"github.com/MikeSquared-Agency/twin/internal/oracle"
	"github.com/MikeSquared-Agency/twin/internal/processor"
	"github.com/MikeSquared-Agency/twin/internal/retrieval"
	"github.com/MikeSquared-Agency/twin/internal/style"
)

// Oracles are the timeout-bounded model clients.
type Oracles struct {
	Gen        oracle.Generator
	Emb        oracle.Embedder
	EmbedModel string
}

// NewOracles picks the generative provider from cfg. Embeddings always come
// from Ollama.
func NewOracles(cfg config.Config, logger *slog.Logger) Oracles {
	local := ollama.NewClient(cfg.OllamaURL, cfg.EmbedModel, cfg.GenModel, logger)

	var gen oracle.Generator = local
	if cfg.GenProvider == config.ProviderAnthropic {
		gen = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	}

	return Oracles{
		Gen:        oracle.WithGenerateTimeout(gen, cfg.OracleTimeout),
		Emb:        oracle.WithEmbedTimeout(local, cfg.OracleTimeout),
		EmbedModel: local.EmbedModel(),
	}
}

func RetrievalConfig(cfg config.Config) retrieval.Config {
	return retrieval.Config{
		TopK:            cfg.TopK,
		MaxContextChars: cfg.MaxContextChars,
		TopPeriods:      cfg.TopPeriods,
		MinScore:        cfg.MinScore,
		PeriodBonus:     cfg.PeriodBonus,
		ChunkBonus:      cfg.ChunkBonus,
		PeriodMargin:    cfg.PeriodMargin,
	}
}

// NewProcessor builds a processor with no sinks attached.
func NewProcessor(cfg config.Config, holder *corpus.Holder, o Oracles, logger *slog.Logger) *processor.Processor {
	proc := processor.New(
		holder,
		intent.New(cfg.DefaultYear),
		retrieval.NewRetriever(o.Emb, RetrievalConfig(cfg), logger),
		extractor.New(o.Gen, logger),
		gate.New(o.Gen, logger),
		logger,
	)
	if cfg.StyleEnabled {
		proc.SetStyler(style.New(o.Gen, IdentityVoice(holder), logger))
	}
	return proc
}

// IdentityVoice reads the identity profile from whichever snapshot is
// current when the style layer runs.
func IdentityVoice(holder *corpus.Holder) style.VoiceFunc {
	return func() string {
		snap := holder.Current()
		if snap == nil {
			return ""
		}
		if c, ok := snap.Chunk(corpus.IdentityID); ok {
			return c.Text
		}
		return ""
	}
}
