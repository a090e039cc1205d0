package build

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"personaforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watch blocks, invoking rebuild whenever a file under one of the
// roots changes. Bursts of events (editors write several times per
// save) coalesce into one rebuild per debounce window. Returns when
// the context is cancelled.
func Watch(ctx context.Context, roots []string, debounce time.Duration, rebuild func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	log := logging.Get(logging.CategoryWatch)

	for _, root := range roots {
		if err := addTree(watcher, root); err != nil {
			return err
		}
		log.Info("Watching %s", root)
	}

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("Event: %s %s", event.Op, event.Name)

			// New directories need watching too.
			if event.Op&fsnotify.Create != 0 {
				_ = addTree(watcher, event.Name)
			}

			if !pending {
				timer.Reset(debounce)
				pending = true
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error: %v", err)

		case <-timer.C:
			pending = false
			if err := rebuild(); err != nil {
				log.Error("Rebuild failed: %v", err)
			}
		}
	}
}

// addTree watches a path and, when it is a directory, every directory
// below it.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Files below the root may vanish between the event and
			// the walk.
			return nil
		}
		if d.IsDir() || path == root {
			return watcher.Add(path)
		}
		return nil
	})
}
