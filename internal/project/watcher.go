package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for further events before
// reporting a batch of changes.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to adapter and model files.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher over the adapter and model directories of a project.
func NewWatcher(root string, opts Options, debounce time.Duration, logger *slog.Logger) *Watcher {
	opts = opts.withDefaults()
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		dirs:     []string{Resolve(root, opts.AdaptersDir), Resolve(root, opts.ModelsDir)},
		debounce: debounce,
		logger:   logger,
	}
}

func isProjectFile(path string) bool {
	return hasExt(path, []string{".yml", ".yaml", ".sql"})
}

// Watch blocks until ctx is done, calling onChange with the sorted set of
// changed files after each quiet period. onChange runs on a single goroutine,
// never concurrently with itself.
func (w *Watcher) Watch(ctx context.Context, onChange func(paths []string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	for _, dir := range w.dirs {
		if err := addTree(fw, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.logger.Info("watching project files", slog.Any("dirs", w.dirs))

	var (
		pending = make(map[string]bool)
		timer   *time.Timer
		fire    = make(chan struct{}, 1)
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(fw, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory",
							slog.String("dir", event.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if event.Op == fsnotify.Chmod || !isProjectFile(event.Name) {
				continue
			}

			pending[event.Name] = true

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)

			if len(paths) == 0 {
				continue
			}
			sort.Strings(paths)
			w.logger.Debug("project files changed", slog.Any("paths", paths))
			onChange(paths)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// addTree adds dir and its subdirectories, skipping hidden ones. A missing
// directory is ignored.
func addTree(fw *fsnotify.Watcher, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
