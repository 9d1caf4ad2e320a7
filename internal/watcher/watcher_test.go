package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/periods"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lenEmbedder struct{}

func (lenEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return []float64{float64(len(text)), 1}, nil
}

func TestLoader_ReloadSwapsSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slack.md"), []byte("2025-10-14 09:30 fixed cold start\n"), 0o644))

	periodsPath := filepath.Join(t.TempDir(), "periods.json")
	require.NoError(t, periods.SaveCache(periodsPath, []corpus.Period{{ID: "2025-W41", ChunkIDs: []string{"slack:msg:0"}}}))

	holder := corpus.NewHolder(corpus.NewSnapshot(nil, nil, nil))
	old := holder.Current()
	loader := NewLoader(dir, periodsPath, corpus.NewIndexer(lenEmbedder{}, nil, "m", discardLogger()), holder, discardLogger())

	var hooked *corpus.Snapshot
	loader.OnSwap(func(_ context.Context, s *corpus.Snapshot) { hooked = s })

	snap, err := loader.Reload(context.Background())
	require.NoError(t, err)
	require.Same(t, snap, holder.Current())
	require.Same(t, snap, hooked)
	require.NotEqual(t, old.Version, snap.Version)
	require.Equal(t, 1, snap.Len())
	require.Len(t, snap.Periods(), 1)
	require.NotNil(t, snap.Vector(0))

	// The old snapshot is untouched for anyone still holding it.
	require.Equal(t, 0, old.Len())
}

func TestLoader_MissingDirKeepsCurrent(t *testing.T) {
	holder := corpus.NewHolder(corpus.NewSnapshot([]corpus.Chunk{{ID: "a", Text: "x"}}, nil, nil))
	before := holder.Current()
	loader := NewLoader(filepath.Join(t.TempDir(), "missing"), "", corpus.NewIndexer(lenEmbedder{}, nil, "m", discardLogger()), holder, discardLogger())

	_, err := loader.Reload(context.Background())
	require.Error(t, err)
	require.Same(t, before, holder.Current())
}

func TestWatcher_DebouncedReload(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32
	w := New(dir, 100*time.Millisecond, ReloadFunc(func(context.Context) error {
		reloads.Add(1)
		return nil
	}), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "notes.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("edit"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return reloads.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, int32(1), reloads.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestRelevant(t *testing.T) {
	require.True(t, relevant(fsnotify.Event{Name: "a/b.md", Op: fsnotify.Write}))
	require.True(t, relevant(fsnotify.Event{Name: "a/b.md", Op: fsnotify.Remove}))
	require.False(t, relevant(fsnotify.Event{Name: "a/b.txt", Op: fsnotify.Write}))
	require.False(t, relevant(fsnotify.Event{Name: "a/b.md", Op: fsnotify.Chmod}))
}
