// Package watcher monitors folders for new media files and reports them in
// debounced batches so a burst of camera imports turns into one upload run.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrijs2005/photoflow/internal/logging"
	"github.com/dmitrijs2005/photoflow/internal/uploader"
)

const DefaultDebounce = time.Second

// Watcher tails one or more directories with fsnotify and emits batches of
// newly created media files on Events.
type Watcher struct {
	fsw      *fsnotify.Watcher
	log      logging.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]bool

	events chan []string
}

func New(log logging.Logger, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		log:      log,
		debounce: debounce,
		pending:  make(map[string]bool),
		events:   make(chan []string),
	}, nil
}

// Events delivers debounced batches of new media file paths, sorted.
func (w *Watcher) Events() <-chan []string {
	return w.events
}

// AddFolder registers a directory and all of its subdirectories.
func (w *Watcher) AddFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", path)
	}
	return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if fi.IsDir() {
			if err := w.fsw.Add(p); err != nil {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
		}
		return nil
	})
}

// Run processes fsnotify events until ctx is cancelled. It must be called
// once; Events is closed when Run returns.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				// New subdirectory, start watching it too.
				if err := w.fsw.Add(ev.Name); err != nil {
					w.log.Warn(ctx, "failed to watch new subdirectory",
						"path", ev.Name, "error", err)
				}
				continue
			}
			if !accept(ev.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = true
			w.mu.Unlock()

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			batch := w.drain()
			if len(batch) == 0 {
				continue
			}
			select {
			case w.events <- batch:
			case <-ctx.Done():
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn(ctx, "fs watcher error", "error", err)
		}
	}
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]bool)
	sort.Strings(batch)
	return batch
}

// accept filters out non-media files plus hidden and in-progress downloads.
func accept(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".tmp" || ext == ".part" {
		return false
	}
	return uploader.IsMediaFile(path)
}
