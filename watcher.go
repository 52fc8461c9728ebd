package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gamma-omg/legal-rag/rag"
	"github.com/gamma-omg/legal-rag/ragerr"
)

type indexRebuilder interface {
	Reset(ctx context.Context) error
	EnsureReady(ctx context.Context) (*rag.Index, error)
}

// DocWatcher rebuilds the whole index once the document sources stop
// changing for mergeEventsDelay.
type DocWatcher struct {
	log              *slog.Logger
	sources          []string
	mergeEventsDelay time.Duration
	index            indexRebuilder
}

func (dw *DocWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, src := range dw.sources {
		if err := dw.add(watcher, src); err != nil {
			watcher.Close()
			return err
		}
	}

	go func() {
		defer watcher.Close()

		timer := time.NewTimer(dw.mergeEventsDelay)
		timer.Stop()

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return

			case e, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !dw.relevant(e) {
					continue
				}

				if e.Has(fsnotify.Create) {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
						if err := dw.add(watcher, e.Name); err != nil {
							dw.log.Warn(fmt.Sprintf("failed to watch %s", e.Name), "err", err)
						}
					}
				}

				dw.log.Debug("document change", "file", e.Name, "op", e.Op.String())
				timer.Reset(dw.mergeEventsDelay)

			case <-timer.C:
				dw.rebuild(ctx)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				dw.log.Error("watcher error", "err", err)
			}
		}
	}()

	return nil
}

// add watches every directory under a directory source, or the parent
// directory of a file source.
func (dw *DocWatcher) add(watcher *fsnotify.Watcher, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: document source %s: %v", ragerr.ErrConfiguration, src, err)
	}

	if !info.IsDir() {
		return watcher.Add(filepath.Dir(src))
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != src && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}

func (dw *DocWatcher) relevant(e fsnotify.Event) bool {
	if e.Op == fsnotify.Chmod || strings.HasPrefix(filepath.Base(e.Name), ".") {
		return false
	}

	for _, src := range dw.sources {
		info, err := os.Stat(src)
		if err == nil && !info.IsDir() {
			if filepath.Clean(e.Name) == filepath.Clean(src) {
				return true
			}
			continue
		}

		rel, err := filepath.Rel(src, e.Name)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}

	return false
}

func (dw *DocWatcher) rebuild(ctx context.Context) {
	dw.log.Info("documents changed, rebuilding index")

	if err := dw.index.Reset(ctx); err != nil {
		dw.log.Error("failed to reset index", "err", err, "kind", ragerr.Kind(err))
		return
	}

	idx, err := dw.index.EnsureReady(ctx)
	if err != nil {
		dw.log.Error("failed to rebuild index", "err", err, "kind", ragerr.Kind(err))
		return
	}

	dw.log.Info("index rebuilt", "passages", idx.Count)
}
