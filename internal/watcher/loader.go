package watcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/periods"
)

// SnapshotHook runs after a new snapshot is installed.
type SnapshotHook func(ctx context.Context, snap *corpus.Snapshot)

// Loader builds snapshots from the corpus directory and the period cache and
// installs them in a Holder.
type Loader struct {
	dir         string
	periodsPath string
	indexer     *corpus.Indexer
	holder      *corpus.Holder
	hooks       []SnapshotHook
	logger      *slog.Logger
}

func NewLoader(dir, periodsPath string, indexer *corpus.Indexer, holder *corpus.Holder, logger *slog.Logger) *Loader {
	return &Loader{dir: dir, periodsPath: periodsPath, indexer: indexer, holder: holder, logger: logger}
}

// OnSwap registers a hook. Not safe to call once reloads have started.
func (l *Loader) OnSwap(h SnapshotHook) { l.hooks = append(l.hooks, h) }

// Reload reads the corpus, indexes it and swaps the result in. On error the
// current snapshot stays in place.
func (l *Loader) Reload(ctx context.Context) (*corpus.Snapshot, error) {
	chunks, err := corpus.Load(l.dir)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	ps, err := periods.LoadCache(l.periodsPath)
	if err != nil {
		l.logger.Warn("period cache unreadable, continuing without periods", "path", l.periodsPath, "error", err)
		ps = nil
	}

	snap, err := l.indexer.Build(ctx, chunks, ps)
	if err != nil {
		return nil, err
	}

	prev := l.holder.Swap(snap)
	if prev != nil {
		l.logger.Info("snapshot replaced", "previous", prev.Version.String(), "current", snap.Version.String())
	}
	for _, h := range l.hooks {
		h(ctx, snap)
	}
	return snap, nil
}
