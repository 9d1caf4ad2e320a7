// Package watcher keeps the served snapshot in step with the corpus
// directory.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader rebuilds the served snapshot.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloadFunc adapts a function to Reloader.
type ReloadFunc func(ctx context.Context) error

func (f ReloadFunc) Reload(ctx context.Context) error { return f(ctx) }

// Watcher triggers a reload after .md files under dir change. Bursts of
// events within the debounce interval produce one reload.
type Watcher struct {
	dir      string
	debounce time.Duration
	reloader Reloader
	logger   *slog.Logger
}

func New(dir string, debounce time.Duration, reloader Reloader, logger *slog.Logger) *Watcher {
	return &Watcher{dir: dir, debounce: debounce, reloader: reloader, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw); err != nil {
		return err
	}
	w.logger.Info("watching corpus", "dir", w.dir)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				w.watchIfDir(fw, event.Name)
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("corpus change", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			start := time.Now()
			if err := w.reloader.Reload(ctx); err != nil {
				w.logger.Error("corpus reload failed", "error", err)
				continue
			}
			w.logger.Info("corpus reloaded", "duration_ms", time.Since(start).Milliseconds())
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) watchIfDir(fw *fsnotify.Watcher, path string) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}
	if err := fw.Add(path); err != nil {
		w.logger.Warn("watch new directory failed", "path", path, "error", err)
	}
}

func relevant(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != ".md" {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
