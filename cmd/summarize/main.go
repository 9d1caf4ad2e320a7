// Command summarize rebuilds the weekly period summaries cache used to
// narrow retrieval.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/MikeSquared-Agency/twin/internal/config"
	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/logger"
	"github.com/MikeSquared-Agency/twin/internal/periods"
	"github.com/MikeSquared-Agency/twin/internal/pipeline"
)

func main() {
	cfg := config.Load()
	out := flag.String("out", cfg.PeriodsPath, "period cache file to write")
	dir := flag.String("corpus", cfg.CorpusDir, "corpus directory")
	flag.Parse()

	log := logger.New("summarize", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chunks, err := corpus.Load(*dir)
	if err != nil {
		log.Error("failed to load corpus", "dir", *dir, "error", err)
		os.Exit(1)
	}

	oracles := pipeline.NewOracles(cfg, log)
	ps, err := periods.NewBuilder(oracles.Gen, oracles.Emb, log).BuildWeekly(ctx, chunks)
	if err != nil {
		log.Error("failed to build periods", "error", err)
		os.Exit(1)
	}

	embedded := 0
	for _, p := range ps {
		if p.Embedding != nil {
			embedded++
		}
	}

	if err := periods.SaveCache(*out, ps); err != nil {
		log.Error("failed to save period cache", "path", *out, "error", err)
		os.Exit(1)
	}
	log.Info("period cache written", "path", *out, "periods", len(ps), "embedded", embedded, "chunks", len(chunks))
}
