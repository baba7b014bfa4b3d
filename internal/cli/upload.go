package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/photoflow/internal/uploader"
)

// AddFiles expands paths into media files, queues them and starts the batch.
func (a *App) AddFiles(ctx context.Context, paths []string) error {
	files := uploader.CollectMediaFiles(paths, a.config.RecursiveScan)
	if len(files) == 0 {
		printlnFn("No media files found")
		return nil
	}

	added := a.manager.Add(files)
	printlnFn(fmt.Sprintf("Queued %d file(s)", len(added)))
	a.manager.Start(ctx, a.uploadOptions())
	return nil
}

// Status prints the state of every queued item and the overall progress.
func (a *App) Status(ctx context.Context) error {
	items := a.manager.Items()
	if len(items) == 0 {
		printlnFn("Queue is empty")
		return nil
	}
	for _, it := range items {
		printlnFn(fmt.Sprintf("%-8s  %-40s  %s", shortID(it.ID), it.FileName, it.StatusText()))
	}
	state := "idle"
	if a.manager.Uploading() {
		state = "uploading"
	}
	if a.manager.Paused() {
		state = "paused"
	}
	printlnFn(fmt.Sprintf("Overall: %.0f%% (%s)", a.manager.OverallProgress()*100, state))
	return nil
}

func (a *App) Pause(ctx context.Context) error {
	a.manager.Pause()
	printlnFn("Paused")
	return nil
}

func (a *App) Resume(ctx context.Context) error {
	a.manager.Resume(ctx)
	printlnFn("Resumed")
	return nil
}

// Cancel cancels one item by id prefix, or everything when no id is given.
func (a *App) Cancel(ctx context.Context, idPrefix string) error {
	if idPrefix == "" {
		a.manager.CancelAll()
		printlnFn("Cancelled all")
		return nil
	}
	id, err := a.findItem(idPrefix)
	if err != nil {
		printlnFn(err.Error())
		return err
	}
	a.manager.Cancel(id)
	printlnFn("Cancelled", shortID(id))
	return nil
}

// Retry re-queues one failed item by id prefix, or all failed items when the
// argument is "all" or empty.
func (a *App) Retry(ctx context.Context, idPrefix string) error {
	if idPrefix == "" || idPrefix == "all" {
		n := a.manager.RetryAllFailed(ctx)
		printlnFn(fmt.Sprintf("Retrying %d item(s)", n))
		return nil
	}
	id, err := a.findItem(idPrefix)
	if err != nil {
		printlnFn(err.Error())
		return err
	}
	if err := a.manager.Retry(ctx, id); err != nil {
		printlnFn(err.Error())
		return err
	}
	printlnFn("Retrying", shortID(id))
	return nil
}

// Force re-uploads a duplicate item, skipping the library check.
func (a *App) Force(ctx context.Context, idPrefix string) error {
	id, err := a.findItem(idPrefix)
	if err != nil {
		printlnFn(err.Error())
		return err
	}
	if err := a.manager.ForceUpload(ctx, id); err != nil {
		printlnFn(err.Error())
		return err
	}
	printlnFn("Force uploading", shortID(id))
	return nil
}

// History prints the most recent upload history entries.
func (a *App) History(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	entries, err := a.hist.List(ctx, limit)
	if err != nil {
		printlnFn("Failed to load history:", err)
		return err
	}
	if len(entries) == 0 {
		printlnFn("No uploads recorded yet")
		return nil
	}
	for _, e := range entries {
		deleted := ""
		if e.WasDeleted {
			deleted = " (local copy deleted)"
		}
		printlnFn(fmt.Sprintf("%s  %-40s  %s%s",
			e.UploadedAt.Format("2006-01-02 15:04"), e.FileName, e.AccountEmail, deleted))
	}
	return nil
}

// findItem resolves an id prefix to a queued item.
func (a *App) findItem(prefix string) (uuid.UUID, error) {
	var matches []uuid.UUID
	for _, it := range a.manager.Items() {
		if strings.HasPrefix(it.ID.String(), prefix) {
			matches = append(matches, it.ID)
		}
	}
	switch len(matches) {
	case 0:
		return uuid.Nil, fmt.Errorf("no item matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%q is ambiguous, matches %d items", prefix, len(matches))
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
