package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/twin/internal/api"
	"github.com/MikeSquared-Agency/twin/internal/config"
	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/embedcache"
	"github.com/MikeSquared-Agency/twin/internal/hermes"
	"github.com/MikeSquared-Agency/twin/internal/logger"
	"github.com/MikeSquared-Agency/twin/internal/pipeline"
	"github.com/MikeSquared-Agency/twin/internal/search"
	"github.com/MikeSquared-Agency/twin/internal/slack"
	"github.com/MikeSquared-Agency/twin/internal/store"
	"github.com/MikeSquared-Agency/twin/internal/stream"
	"github.com/MikeSquared-Agency/twin/internal/watcher"
)

const watchDebounce = 2 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New("twin", cfg.LogLevel)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log.Info("twin starting", "port", cfg.Port, "corpus", cfg.CorpusDir, "provider", cfg.GenProvider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	oracles := pipeline.NewOracles(cfg, log)

	// Embedding cache
	cache, err := embedcache.Open(cfg.EmbedCacheDB)
	if err != nil {
		log.Error("failed to open embedding cache", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	// Corpus snapshot
	holder := corpus.NewHolder(corpus.NewSnapshot(nil, nil, nil))
	indexer := corpus.NewIndexer(oracles.Emb, cache, oracles.EmbedModel, log)
	loader := watcher.NewLoader(cfg.CorpusDir, cfg.PeriodsPath, indexer, holder, log)
	loader.OnSwap(func(ctx context.Context, snap *corpus.Snapshot) {
		keep := make(map[string]bool, snap.Len())
		for _, c := range snap.Chunks() {
			keep[c.ID] = true
		}
		if n, err := cache.Prune(ctx, keep); err != nil {
			log.Warn("embedding cache prune failed", "error", err)
		} else if n > 0 {
			log.Info("embedding cache pruned", "removed", n)
		}
	})

	proc := pipeline.NewProcessor(cfg, holder, oracles, log)
	srv := api.NewServer(cfg.Port, cfg.APIToken, proc, log)

	// Answer store (optional)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		proc.SetStore(db)
		srv.SetAnswers(db)
		log.Info("database connected")
	}

	// Answer stream (optional)
	if len(cfg.KafkaBrokers) > 0 {
		pub := stream.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer pub.Close()
		proc.SetStream(pub)
		log.Info("kafka stream ready", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	// Chunk search (optional)
	if cfg.ElasticsearchURL != "" {
		es, err := search.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("failed to create search client", "error", err)
			os.Exit(1)
		}
		if err := es.Ping(ctx); err != nil {
			log.Warn("elasticsearch not reachable, search may fail", "error", err)
		}
		loader.OnSwap(func(ctx context.Context, snap *corpus.Snapshot) {
			if err := es.IndexSnapshot(ctx, snap); err != nil {
				log.Warn("search indexing failed", "error", err)
			}
		})
		srv.SetSearch(es)
		log.Info("elasticsearch ready", "index", cfg.ElasticsearchIndex)
	}

	// Slack gaps (optional)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		proc.SetNotifier(slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, log))
		log.Info("slack gap notifier ready", "channel", cfg.SlackChannel)
	} else {
		log.Warn("slack not configured, knowledge gaps are only logged")
	}

	// NATS (optional). Questions are consumed only after the initial load.
	var questions questionSource
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(cfg.NatsURL, cfg.NatsToken, log)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		proc.SetEvents(hermesClient)
		questions = hermesClient
		log.Info("NATS connected", "url", cfg.NatsURL)
	}

	snap, err := loadThenSubscribe(ctx, loader, questions, proc.HandleQuestion)
	if err != nil {
		log.Error("startup failed", "dir", cfg.CorpusDir, "error", err)
		os.Exit(1)
	}
	log.Info("corpus loaded", "chunks", snap.Len(), "periods", len(snap.Periods()), "version", snap.Version.String())

	if cfg.Watch {
		w := watcher.New(cfg.CorpusDir, watchDebounce, watcher.ReloadFunc(func(ctx context.Context) error {
			_, err := loader.Reload(ctx)
			return err
		}), log)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	log.Info("twin ready", "port", cfg.Port)

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	log.Info("twin stopped")
}
