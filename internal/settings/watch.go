package settings

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the settings file whenever another process changes it and
// broadcasts a "reload" event carrying the new snapshot. It blocks until ctx
// is cancelled. Writes made by this Store are recognised and skipped.
func (s *Store) Watch(ctx context.Context) error {
	if s.filePath == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors and our own flush replace the file by
	// rename, which drops a watch on the file itself.
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target := filepath.Clean(s.filePath)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			// An atomic save removes or renames the old file before the
			// new one appears; wait for the Create or Write.
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				s.reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("settings watcher", "error", err)
		}
	}
}

// reload replaces the in-memory values with the file contents if they were
// changed by someone else. A missing file leaves the values untouched.
func (s *Store) reload() {
	raw, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.log.Warn("reading settings file", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if string(raw) == string(s.lastFlush) {
		return
	}
	loaded, err := s.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("reloading settings", "error", err)
		}
		return
	}
	if maps.Equal(loaded, s.values) {
		return
	}
	s.values = loaded
	s.log.Info("settings changed on disk", "keys", len(loaded))
	s.broadcast(Event{Type: "reload", Data: maps.Clone(loaded)})
}
