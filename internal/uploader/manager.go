package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/photoflow/internal/hashx"
	"github.com/dmitrijs2005/photoflow/internal/history"
	"github.com/dmitrijs2005/photoflow/internal/logging"
	"github.com/dmitrijs2005/photoflow/internal/photoservice/wire"
)

// Service is the part of the photo service client the manager needs.
type Service interface {
	FindRemoteMediaByHash(ctx context.Context, sha1 []byte) (string, error)
	RequestUploadToken(ctx context.Context, sha1Base64 string, fileSize int64) (string, error)
	UploadRawBytes(ctx context.Context, filePath string, uploadToken string, onProgress func(float64)) (wire.CommitToken, error)
	Commit(ctx context.Context, tok wire.CommitToken, fileName string, sha1 []byte, modifiedAt time.Time, storageSaver, useQuota bool) (string, error)
}

// Options controls one upload batch.
type Options struct {
	MaxConcurrency    int
	ForceUpload       bool
	DeleteAfterUpload bool
	StorageSaver      bool
	UseQuota          bool
	AccountEmail      string
}

const defaultMaxConcurrency = 3

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaultMaxConcurrency
	}
	return o
}

// Summary is the outcome of a finished batch.
type Summary struct {
	Completed int
	Failed    int
}

// Manager owns the upload queue and drives items through their lifecycle with
// a bounded number of concurrent workers.
type Manager struct {
	svc     Service
	log     logging.Logger
	histrec history.Repository

	// removeFile is a seam for tests; defaults to os.Remove.
	removeFile func(string) error

	mu        sync.Mutex
	items     []*Item
	cancels   map[uuid.UUID]context.CancelFunc
	uploading bool
	paused    bool
	overall   float64
	opts      Options

	// OnBatchDone, when set, is invoked after a batch drains.
	OnBatchDone func(Summary)
	// OnChange, when set, is invoked after any item state change.
	OnChange func()
}

func NewManager(svc Service, log logging.Logger, hist history.Repository) *Manager {
	return &Manager{
		svc:        svc,
		log:        log,
		histrec:    hist,
		removeFile: os.Remove,
		cancels:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Add queues files for upload and returns the created items. Files already
// queued by path are skipped unless they previously finished.
func (m *Manager) Add(paths []string) []*Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make(map[string]bool)
	for _, it := range m.items {
		if !it.Status.Terminal() && it.Status != StatusError {
			active[it.FilePath] = true
		}
	}

	var added []*Item
	for _, p := range paths {
		if active[p] {
			continue
		}
		it := &Item{
			ID:       uuid.New(),
			FilePath: p,
			FileName: filepath.Base(p),
			Status:   StatusQueued,
			AddedAt:  time.Now(),
		}
		m.items = append(m.items, it)
		added = append(added, it)
		active[p] = true
	}
	return added
}

// Start begins processing queued items with the given options. It is a no-op
// if a batch is already running.
func (m *Manager) Start(ctx context.Context, opts Options) {
	m.mu.Lock()
	if m.uploading {
		m.mu.Unlock()
		return
	}
	m.uploading = true
	m.paused = false
	m.opts = opts.withDefaults()
	m.mu.Unlock()

	go m.run(ctx)
}

// run dispatches queued items in order, keeping at most MaxConcurrency
// workers busy, and drains active workers before reporting the summary.
func (m *Manager) run(ctx context.Context) {
	results := make(chan uuid.UUID)
	inFlight := 0

	for {
		m.mu.Lock()
		var next *Item
		if !m.paused && inFlight < m.opts.MaxConcurrency {
			for _, it := range m.items {
				if it.Status == StatusQueued {
					next = it
					break
				}
			}
		}
		if next != nil {
			// Claim the item before releasing the lock so it cannot be
			// dispatched twice.
			next.Status = StatusHashing
			itemCtx, cancel := context.WithCancel(ctx)
			m.cancels[next.ID] = cancel
			opts := m.opts
			m.mu.Unlock()

			inFlight++
			go func(it *Item) {
				m.process(itemCtx, it, opts, opts.ForceUpload)
				results <- it.ID
			}(next)
			continue
		}
		m.mu.Unlock()

		if inFlight == 0 {
			break
		}

		id := <-results
		inFlight--
		m.mu.Lock()
		delete(m.cancels, id)
		m.recomputeOverallLocked()
		m.mu.Unlock()
		m.notifyChange()
	}

	m.mu.Lock()
	m.uploading = false
	paused := m.paused
	summary := m.summaryLocked()
	cb := m.OnBatchDone
	m.mu.Unlock()

	if !paused {
		m.log.Info(ctx, "batch finished",
			"completed", summary.Completed, "failed", summary.Failed)
		if cb != nil {
			cb(summary)
		}
	}
}

// process runs a single item through its lifecycle. force skips the
// duplicate check against the remote library.
func (m *Manager) process(ctx context.Context, it *Item, opts Options, force bool) {
	if !m.transition(it, StatusHashing) {
		return
	}

	sum, err := hashx.SumFile(it.FilePath)
	if err != nil {
		m.fail(it, fmt.Sprintf("hashing failed: %v", err))
		return
	}
	m.setHash(it, sum)

	if !force {
		if !m.transition(it, StatusChecking) {
			return
		}
		mediaKey, err := m.svc.FindRemoteMediaByHash(ctx, sum)
		if err != nil {
			m.fail(it, fmt.Sprintf("library check failed: %v", err))
			return
		}
		if mediaKey != "" {
			m.finish(it, StatusDuplicate, mediaKey)
			return
		}
	}

	if !m.transition(it, StatusUploading) {
		return
	}

	info, err := os.Stat(it.FilePath)
	if err != nil {
		m.fail(it, fmt.Sprintf("cannot stat file: %v", err))
		return
	}

	token, err := m.svc.RequestUploadToken(ctx, base64.StdEncoding.EncodeToString(sum), info.Size())
	if err != nil {
		m.fail(it, fmt.Sprintf("upload token request failed: %v", err))
		return
	}

	commitTok, err := m.svc.UploadRawBytes(ctx, it.FilePath, token, func(p float64) {
		m.setProgress(it, p)
	})
	if err != nil {
		m.fail(it, fmt.Sprintf("upload failed: %v", err))
		return
	}

	if !m.transition(it, StatusFinalizing) {
		return
	}

	mediaKey, err := m.svc.Commit(ctx, commitTok, it.FileName, sum, info.ModTime(), opts.StorageSaver, opts.UseQuota)
	if err != nil {
		m.fail(it, fmt.Sprintf("commit failed: %v", err))
		return
	}

	m.finish(it, StatusCompleted, mediaKey)

	if opts.DeleteAfterUpload {
		m.deleteLocal(ctx, it, sum)
	}
	m.recordHistory(ctx, it, opts.AccountEmail)
}

// deleteLocal removes the uploaded file after re-confirming the remote copy
// exists by hash (and that the local content still matches the committed
// hash). Any failed confirmation skips the deletion; the item stays
// completed either way.
func (m *Manager) deleteLocal(ctx context.Context, it *Item, committed []byte) {
	key, err := m.svc.FindRemoteMediaByHash(ctx, committed)
	if err != nil {
		m.log.Warn(ctx, "skipping delete, remote confirmation failed",
			"path", it.FilePath, "error", err)
		return
	}
	if key == "" {
		m.log.Warn(ctx, "skipping delete, remote copy not confirmed",
			"path", it.FilePath)
		return
	}
	sum, err := hashx.SumFile(it.FilePath)
	if err != nil {
		m.log.Warn(ctx, "skipping delete, file unreadable",
			"path", it.FilePath, "error", err)
		return
	}
	if !bytes.Equal(sum, committed) {
		m.log.Warn(ctx, "skipping delete, file changed since upload",
			"path", it.FilePath)
		return
	}
	if err := m.removeFile(it.FilePath); err != nil {
		m.log.Warn(ctx, "delete failed",
			"path", it.FilePath, "error", err)
		return
	}
	m.mu.Lock()
	it.Deleted = true
	m.mu.Unlock()
}

func (m *Manager) recordHistory(ctx context.Context, it *Item, email string) {
	if m.histrec == nil {
		return
	}
	m.mu.Lock()
	e := &history.Entry{
		ID:           it.ID.String(),
		FileName:     it.FileName,
		FilePath:     it.FilePath,
		UploadedAt:   it.FinishedAt,
		MediaKey:     it.MediaKey,
		WasDeleted:   it.Deleted,
		AccountEmail: email,
	}
	m.mu.Unlock()

	if err := m.histrec.Add(ctx, e); err != nil {
		m.log.Warn(ctx, "failed to record upload history", "error", err)
	}
}

// transition moves the item to the next status. It refuses to move items that
// already reached a terminal status or were cancelled, which makes
// cancellation cooperative between phases.
func (m *Manager) transition(it *Item, next Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.Status.Terminal() || it.Status == StatusCancelled {
		return false
	}
	it.Status = next
	m.notifyChangeLocked()
	return true
}

func (m *Manager) fail(it *Item, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.Status.Terminal() {
		return
	}
	it.Status = StatusError
	it.Message = msg
	it.FinishedAt = time.Now()
	m.notifyChangeLocked()
}

func (m *Manager) finish(it *Item, status Status, mediaKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.Status.Terminal() {
		return
	}
	it.Status = status
	it.MediaKey = mediaKey
	it.Progress = 1
	it.Message = ""
	it.FinishedAt = time.Now()
	m.notifyChangeLocked()
}

func (m *Manager) setHash(it *Item, sum []byte) {
	m.mu.Lock()
	it.SHA1 = sum
	m.mu.Unlock()
}

func (m *Manager) setProgress(it *Item, p float64) {
	m.mu.Lock()
	if p > it.Progress {
		it.Progress = p
	}
	m.mu.Unlock()
	m.notifyChange()
}

// Pause stops dispatching new items. Items already in flight run to
// completion.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume restarts dispatching. If the scheduler already drained, a new batch
// is started for the remaining queued items.
func (m *Manager) Resume(ctx context.Context) {
	m.mu.Lock()
	m.paused = false
	restart := !m.uploading && m.queuedLocked() > 0
	if restart {
		m.uploading = true
	}
	m.mu.Unlock()

	if restart {
		go m.run(ctx)
	}
}

// CancelAll cancels every in-flight item and marks all non-terminal items
// cancelled.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.cancels {
		cancel()
	}
	for _, it := range m.items {
		if !it.Status.Terminal() {
			it.Status = StatusCancelled
			it.FinishedAt = time.Now()
		}
	}
	m.notifyChangeLocked()
}

// Cancel cancels a single item by id.
func (m *Manager) Cancel(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
	}
	for _, it := range m.items {
		if it.ID == id && !it.Status.Terminal() {
			it.Status = StatusCancelled
			it.FinishedAt = time.Now()
			break
		}
	}
	m.notifyChangeLocked()
}

// Retry re-queues an item that ended in error. If a batch is running the item
// is picked up by the scheduler; otherwise a worker is started directly and
// may exceed the concurrency cap by one.
func (m *Manager) Retry(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	var target *Item
	for _, it := range m.items {
		if it.ID == id {
			target = it
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return fmt.Errorf("item %s not found", id)
	}
	if target.Status != StatusError {
		m.mu.Unlock()
		return fmt.Errorf("item %s is not in error state", id)
	}
	target.Message = ""
	target.Progress = 0
	target.FinishedAt = time.Time{}
	running := m.uploading

	if !running {
		target.Status = StatusQueued
		opts := m.opts
		m.mu.Unlock()
		m.notifyChange()
		m.Start(ctx, opts)
		return nil
	}

	// The pool is busy: submit right away as an extra concurrent task
	// instead of waiting for a scheduler slot. This may transiently exceed
	// the concurrency cap by one. Claim the item before unlocking so the
	// scheduler cannot dispatch it a second time.
	target.Status = StatusHashing
	opts := m.opts.withDefaults()
	itemCtx, cancel := context.WithCancel(ctx)
	m.cancels[id] = cancel
	m.mu.Unlock()
	m.notifyChange()

	go func() {
		m.process(itemCtx, target, opts, opts.ForceUpload)
		m.mu.Lock()
		delete(m.cancels, id)
		m.recomputeOverallLocked()
		m.mu.Unlock()
		m.notifyChange()
	}()
	return nil
}

// RetryAllFailed re-queues every item that ended in error.
func (m *Manager) RetryAllFailed(ctx context.Context) int {
	m.mu.Lock()
	n := 0
	for _, it := range m.items {
		if it.Status == StatusError {
			it.Status = StatusQueued
			it.Message = ""
			it.Progress = 0
			it.FinishedAt = time.Time{}
			n++
		}
	}
	running := m.uploading
	opts := m.opts
	m.mu.Unlock()

	if n > 0 {
		m.notifyChange()
		if !running {
			m.Start(ctx, opts)
		}
	}
	return n
}

// ForceUpload re-uploads an item that was skipped as a duplicate, bypassing
// the library hash check. Only duplicate items are eligible.
func (m *Manager) ForceUpload(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	var target *Item
	for _, it := range m.items {
		if it.ID == id {
			target = it
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return fmt.Errorf("item %s not found", id)
	}
	if target.Status != StatusDuplicate {
		m.mu.Unlock()
		return fmt.Errorf("item %s is not a duplicate", id)
	}
	// Claim the item here rather than re-queueing it, so a running
	// scheduler cannot pick it up as a regular (non-forced) dispatch.
	target.Status = StatusHashing
	target.Progress = 0
	target.MediaKey = ""
	target.FinishedAt = time.Time{}
	opts := m.opts.withDefaults()

	itemCtx, cancel := context.WithCancel(ctx)
	m.cancels[id] = cancel
	m.mu.Unlock()
	m.notifyChange()

	go func() {
		m.process(itemCtx, target, opts, true)
		m.mu.Lock()
		delete(m.cancels, id)
		m.recomputeOverallLocked()
		m.mu.Unlock()
		m.notifyChange()
	}()
	return nil
}

// Items returns a snapshot of all items.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, *it)
	}
	return out
}

// Find returns a snapshot of the item with the given id.
func (m *Manager) Find(id uuid.UUID) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID == id {
			return *it, true
		}
	}
	return Item{}, false
}

// OverallProgress is the fraction of items that reached a final outcome.
func (m *Manager) OverallProgress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overall
}

// Uploading reports whether a batch is currently running.
func (m *Manager) Uploading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploading
}

// Paused reports whether dispatching is paused.
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Manager) queuedLocked() int {
	n := 0
	for _, it := range m.items {
		if it.Status == StatusQueued {
			n++
		}
	}
	return n
}

func (m *Manager) summaryLocked() Summary {
	var s Summary
	for _, it := range m.items {
		switch it.Status {
		case StatusCompleted, StatusDuplicate:
			s.Completed++
		case StatusError:
			s.Failed++
		}
	}
	return s
}

// recomputeOverallLocked recalculates aggregate progress as
// (completed + error) / total. Duplicates and cancelled items do not count.
func (m *Manager) recomputeOverallLocked() {
	if len(m.items) == 0 {
		m.overall = 0
		return
	}
	done := 0
	for _, it := range m.items {
		switch it.Status {
		case StatusCompleted, StatusError:
			done++
		}
	}
	m.overall = float64(done) / float64(len(m.items))
}

func (m *Manager) notifyChange() {
	m.mu.Lock()
	cb := m.OnChange
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (m *Manager) notifyChangeLocked() {
	if m.OnChange != nil {
		go m.OnChange()
	}
}
