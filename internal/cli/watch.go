package cli

import (
	"context"

	"github.com/dmitrijs2005/photoflow/internal/watcher"
)

// Watch starts monitoring a folder; newly appearing media files are queued
// and uploaded automatically. Only one watch runs at a time.
func (a *App) Watch(ctx context.Context, path string) error {
	if a.watchCancel != nil {
		printlnFn("Already watching, use 'unwatch' first")
		return nil
	}

	w, err := watcher.New(a.log, a.config.WatchDebounce)
	if err != nil {
		printlnFn("Failed to start watcher:", err)
		return err
	}
	if err := w.AddFolder(path); err != nil {
		printlnFn(err.Error())
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel

	go w.Run(watchCtx)
	go func() {
		for batch := range w.Events() {
			added := a.manager.Add(batch)
			if len(added) == 0 {
				continue
			}
			a.log.Info(watchCtx, "watcher queued new files", "count", len(added))
			a.manager.Start(watchCtx, a.uploadOptions())
		}
	}()

	printlnFn("Watching", path)
	return nil
}

// StopWatch stops the folder watch if one is running.
func (a *App) StopWatch() {
	if a.watchCancel == nil {
		return
	}
	a.watchCancel()
	a.watchCancel = nil
	printlnFn("Stopped watching")
}
