// Package watch re-renders a markdown file each time it is saved.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Feeder is the part of a stream the watcher drives.
type Feeder interface {
	Add(content string, full bool)
	Reset()
}

// Watcher feeds the full contents of a file to a Feeder on every change.
type Watcher struct {
	log  *slog.Logger
	last string
}

func New(log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{log: log}
}

// Run feeds path once, then again after each write or create, until ctx is
// done. An edit that is not a pure append resets the feeder first, as does
// removing or renaming the file. The directory is watched rather than the
// file so editors that replace files on save keep working.
func (w *Watcher) Run(ctx context.Context, path string, f Feeder) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	if err := w.feed(abs, f); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := w.feed(abs, f); err != nil {
					w.log.Warn("failed to read watched file", "path", abs, "error", err)
				}
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.log.Debug("watched file removed", "path", abs)
				w.last = ""
				f.Reset()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) feed(path string, f Feeder) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		// Truncated on save; wait for the write that follows.
		return nil
	}
	content := string(data)
	if content == w.last {
		return nil
	}
	if !strings.HasPrefix(content, w.last) {
		w.log.Debug("watched file rewritten, restarting stream", "path", path)
		f.Reset()
	}
	w.log.Debug("feeding watched file", "path", path, "bytes", len(data))
	f.Add(content, true)
	w.last = content
	return nil
}
