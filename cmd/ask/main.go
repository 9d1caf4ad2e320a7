// Command ask answers one question against the local corpus and exits.
//
//	ask [-debug] "What was I working on in Q4 2025?"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MikeSquared-Agency/twin/internal/config"
	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/embedcache"
	"github.com/MikeSquared-Agency/twin/internal/logger"
	"github.com/MikeSquared-Agency/twin/internal/pipeline"
	"github.com/MikeSquared-Agency/twin/internal/processor"
	"github.com/MikeSquared-Agency/twin/internal/watcher"
)

func main() {
	debug := flag.Bool("debug", false, "print the retrieval and decision trace")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: ask [-debug] \"question\"\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	level := "warn"
	if *debug {
		level = cfg.LogLevel
	}
	log := logger.New("ask", level)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	oracles := pipeline.NewOracles(cfg, log)

	cache, err := embedcache.Open(cfg.EmbedCacheDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open embedding cache: %v\n", err)
		os.Exit(1)
	}
	defer cache.Close()

	holder := corpus.NewHolder(corpus.NewSnapshot(nil, nil, nil))
	indexer := corpus.NewIndexer(oracles.Emb, cache, oracles.EmbedModel, log)
	if _, err := watcher.NewLoader(cfg.CorpusDir, cfg.PeriodsPath, indexer, holder, log).Reload(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "load corpus: %v\n", err)
		os.Exit(1)
	}

	out := pipeline.NewProcessor(cfg, holder, oracles, log).Ask(ctx, question)
	printOutcome(out, *debug)
}

func printOutcome(out *processor.Outcome, debug bool) {
	fmt.Println(out.Result.Text)
	fmt.Println()
	fmt.Printf("Confidence: %s\n", out.Result.Confidence)
	if out.Result.Refused {
		fmt.Printf("Reason: %s\n", out.Result.Reason)
	}
	if len(out.Result.Citations) > 0 {
		fmt.Printf("Citations: %s\n", strings.Join(out.Result.Citations, ", "))
	}

	if !debug {
		return
	}
	fmt.Println()
	fmt.Println("--- trace ---")
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"intent":       out.Intent,
		"periods":      out.Periods,
		"candidates":   out.Candidates,
		"retrieved":    traceRetrieved(out),
		"evidence":     out.Evidence,
		"entailment":   out.Result.Entailment,
		"path":         out.Result.Path,
		"reason":       out.Result.Reason,
		"failed_stage": out.FailedStage,
		"duration":     out.Duration.String(),
	})
}

func traceRetrieved(out *processor.Outcome) []map[string]any {
	rows := make([]map[string]any, 0, len(out.Retrieved))
	for _, r := range out.Retrieved {
		rows = append(rows, map[string]any{
			"chunk_id": r.Chunk.ID,
			"source":   r.Chunk.Source,
			"score":    fmt.Sprintf("%.3f", r.Score),
		})
	}
	return rows
}
