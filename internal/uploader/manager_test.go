package uploader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/photoflow/internal/hashx"
	"github.com/dmitrijs2005/photoflow/internal/history"
	"github.com/dmitrijs2005/photoflow/internal/logging"
	"github.com/dmitrijs2005/photoflow/internal/photoservice/wire"
)

type fakeService struct {
	mu sync.Mutex

	knownHashes map[string]string // raw sha1 bytes -> media key
	findErr     error
	tokenErr    error
	uploadErr   error
	commitErr   error

	// errPath limits uploadErr to one file; empty means every file.
	errPath string
	// errOnce fails only the first matching upload attempt.
	errOnce bool
	errUsed int32
	// pathDelay overrides uploadDelay for specific files.
	pathDelay map[string]time.Duration

	// commitSkipsRegister leaves the library unchanged on commit, so the
	// pre-delete confirmation cannot find the uploaded copy.
	commitSkipsRegister bool

	findCalls   int32
	commitCalls int32
	inFlight    int32
	maxInFlight int32
	uploadDelay time.Duration
}

func (f *fakeService) FindRemoteMediaByHash(ctx context.Context, sha1 []byte) (string, error) {
	atomic.AddInt32(&f.findCalls, 1)
	if f.findErr != nil {
		return "", f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.knownHashes[string(sha1)], nil
}

func (f *fakeService) RequestUploadToken(ctx context.Context, sha1Base64 string, fileSize int64) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "tok-1", nil
}

func (f *fakeService) UploadRawBytes(ctx context.Context, filePath string, uploadToken string, onProgress func(float64)) (wire.CommitToken, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, n) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	delay := f.uploadDelay
	if d, ok := f.pathDelay[filePath]; ok {
		delay = d
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return wire.CommitToken{}, ctx.Err()
		}
	}
	if f.uploadErr != nil && (f.errPath == "" || f.errPath == filePath) {
		if !f.errOnce || atomic.CompareAndSwapInt32(&f.errUsed, 0, 1) {
			return wire.CommitToken{}, f.uploadErr
		}
	}
	onProgress(0)
	onProgress(0.5)
	onProgress(1)
	return wire.CommitToken{SessionID: 42, Continuation: []byte{1, 2}}, nil
}

func (f *fakeService) Commit(ctx context.Context, tok wire.CommitToken, fileName string, sha1 []byte, modifiedAt time.Time, storageSaver, useQuota bool) (string, error) {
	atomic.AddInt32(&f.commitCalls, 1)
	if f.commitErr != nil {
		return "", f.commitErr
	}
	if !f.commitSkipsRegister {
		f.mu.Lock()
		if f.knownHashes == nil {
			f.knownHashes = make(map[string]string)
		}
		f.knownHashes[string(sha1)] = "media-key-1"
		f.mu.Unlock()
	}
	return "media-key-1", nil
}

type memHistory struct {
	mu      sync.Mutex
	entries []*history.Entry
}

func (m *memHistory) Add(ctx context.Context, e *history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memHistory) List(ctx context.Context, limit int) ([]*history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, nil
}

func sumOf(path string) ([]byte, error) {
	return hashx.SumFile(path)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func waitIdle(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !m.Uploading() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("manager did not finish in time")
}

func TestManager_UploadsNewFile(t *testing.T) {
	svc := &fakeService{knownHashes: map[string]string{}}
	hist := &memHistory{}
	m := NewManager(svc, testLogger(), hist)

	p := writeTempFile(t, "photo.jpg", "image bytes")
	added := m.Add([]string{p})
	require.Len(t, added, 1)

	var done sync.WaitGroup
	done.Add(1)
	m.OnBatchDone = func(s Summary) {
		require.Equal(t, 1, s.Completed)
		require.Equal(t, 0, s.Failed)
		done.Done()
	}

	m.Start(context.Background(), Options{AccountEmail: "test@gmail.com"})
	done.Wait()
	waitIdle(t, m)

	items := m.Items()
	require.Len(t, items, 1)
	require.Equal(t, StatusCompleted, items[0].Status)
	require.Equal(t, "media-key-1", items[0].MediaKey)
	require.Equal(t, float64(1), items[0].Progress)
	require.Equal(t, float64(1), m.OverallProgress())

	require.Len(t, hist.entries, 1)
	require.Equal(t, "photo.jpg", hist.entries[0].FileName)
	require.Equal(t, "test@gmail.com", hist.entries[0].AccountEmail)
	require.Equal(t, "media-key-1", hist.entries[0].MediaKey)
}

func TestManager_SkipsDuplicate(t *testing.T) {
	p := writeTempFile(t, "dup.jpg", "already there")
	sum, err := sumOf(p)
	require.NoError(t, err)

	svc := &fakeService{knownHashes: map[string]string{string(sum): "existing-key"}}
	m := NewManager(svc, testLogger(), nil)
	m.Add([]string{p})

	m.Start(context.Background(), Options{})
	waitIdle(t, m)

	items := m.Items()
	require.Equal(t, StatusDuplicate, items[0].Status)
	require.Equal(t, "existing-key", items[0].MediaKey)
	require.Equal(t, int32(0), atomic.LoadInt32(&svc.commitCalls))
}

func TestManager_OverallProgressExcludesDuplicates(t *testing.T) {
	dup := writeTempFile(t, "dup.jpg", "already there")
	sum, err := sumOf(dup)
	require.NoError(t, err)
	fresh := writeTempFile(t, "fresh.jpg", "new bytes")

	svc := &fakeService{knownHashes: map[string]string{string(sum): "existing-key"}}
	m := NewManager(svc, testLogger(), nil)
	m.Add([]string{dup, fresh})

	m.Start(context.Background(), Options{})
	waitIdle(t, m)

	// Only the freshly uploaded file counts toward the aggregate; the
	// duplicate was never transferred.
	require.InDelta(t, 0.5, m.OverallProgress(), 1e-9)
}

func TestManager_ForceUploadSkipsDuplicateCheck(t *testing.T) {
	p := writeTempFile(t, "dup.jpg", "already there")
	sum, err := sumOf(p)
	require.NoError(t, err)

	svc := &fakeService{knownHashes: map[string]string{string(sum): "existing-key"}}
	m := NewManager(svc, testLogger(), nil)
	added := m.Add([]string{p})

	m.Start(context.Background(), Options{})
	waitIdle(t, m)
	require.Equal(t, StatusDuplicate, m.Items()[0].Status)

	require.NoError(t, m.ForceUpload(context.Background(), added[0].ID))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if it, ok := m.Find(added[0].ID); ok && it.Status == StatusCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	it, _ := m.Find(added[0].ID)
	require.Equal(t, StatusCompleted, it.Status)
	require.Equal(t, "media-key-1", it.MediaKey)
}

func TestManager_ForceUploadClaimsItemImmediately(t *testing.T) {
	p := writeTempFile(t, "dup.jpg", "already there")
	sum, err := sumOf(p)
	require.NoError(t, err)

	svc := &fakeService{knownHashes: map[string]string{string(sum): "existing-key"}}
	m := NewManager(svc, testLogger(), nil)
	added := m.Add([]string{p})

	m.Start(context.Background(), Options{})
	waitIdle(t, m)
	require.Equal(t, int32(1), atomic.LoadInt32(&svc.findCalls))

	require.NoError(t, m.ForceUpload(context.Background(), added[0].ID))

	// The item is claimed before ForceUpload returns, never put back in
	// the queue where a scheduler could pick it up as a regular dispatch.
	it, ok := m.Find(added[0].ID)
	require.True(t, ok)
	require.NotEqual(t, StatusQueued, it.Status)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if it, _ := m.Find(added[0].ID); it.Status == StatusCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	it, _ = m.Find(added[0].ID)
	require.Equal(t, StatusCompleted, it.Status)
	// A forced upload must not run the duplicate check again.
	require.Equal(t, int32(1), atomic.LoadInt32(&svc.findCalls))
}

func TestManager_ForceUploadRejectsNonDuplicate(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc, testLogger(), nil)
	p := writeTempFile(t, "a.jpg", "x")
	added := m.Add([]string{p})

	err := m.ForceUpload(context.Background(), added[0].ID)
	require.Error(t, err)
}

func TestManager_ErrorAndRetry(t *testing.T) {
	svc := &fakeService{uploadErr: errors.New("connection reset")}
	m := NewManager(svc, testLogger(), nil)
	p := writeTempFile(t, "a.jpg", "x")
	added := m.Add([]string{p})

	m.Start(context.Background(), Options{})
	waitIdle(t, m)

	it, _ := m.Find(added[0].ID)
	require.Equal(t, StatusError, it.Status)
	require.Contains(t, it.Message, "upload failed")

	svc.uploadErr = nil
	require.NoError(t, m.Retry(context.Background(), added[0].ID))
	waitIdle(t, m)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if it, _ := m.Find(added[0].ID); it.Status == StatusCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	it, _ = m.Find(added[0].ID)
	require.Equal(t, StatusCompleted, it.Status)
}

func TestManager_RetryRunsAlongsideActiveBatch(t *testing.T) {
	bad := writeTempFile(t, "bad.jpg", "flaky")
	slow1 := writeTempFile(t, "slow1.jpg", "big one")
	slow2 := writeTempFile(t, "slow2.jpg", "another big one")

	svc := &fakeService{
		uploadErr: errors.New("connection reset"),
		errPath:   bad,
		errOnce:   true,
		pathDelay: map[string]time.Duration{
			slow1: 2 * time.Second,
			slow2: 2 * time.Second,
		},
	}
	m := NewManager(svc, testLogger(), nil)
	added := m.Add([]string{bad, slow1, slow2})
	badID := added[0].ID

	m.Start(context.Background(), Options{MaxConcurrency: 2})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		it, _ := m.Find(badID)
		if it.Status == StatusError && atomic.LoadInt32(&svc.inFlight) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	it, _ := m.Find(badID)
	require.Equal(t, StatusError, it.Status)
	require.True(t, m.Uploading())

	// With the pool saturated by the slow uploads, the retried item must
	// not wait for a free scheduler slot.
	require.NoError(t, m.Retry(context.Background(), badID))

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if it, _ := m.Find(badID); it.Status == StatusCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	it, _ = m.Find(badID)
	require.Equal(t, StatusCompleted, it.Status)
	require.True(t, m.Uploading())

	waitIdle(t, m)
	for _, item := range m.Items() {
		require.Equal(t, StatusCompleted, item.Status)
	}
}

func TestManager_RetryRejectsNonError(t *testing.T) {
	m := NewManager(&fakeService{}, testLogger(), nil)
	p := writeTempFile(t, "a.jpg", "x")
	added := m.Add([]string{p})

	err := m.Retry(context.Background(), added[0].ID)
	require.Error(t, err)
}

func TestManager_MissingFileFails(t *testing.T) {
	m := NewManager(&fakeService{}, testLogger(), nil)
	m.Add([]string{filepath.Join(t.TempDir(), "does-not-exist.jpg")})

	m.Start(context.Background(), Options{})
	waitIdle(t, m)

	it := m.Items()[0]
	require.Equal(t, StatusError, it.Status)
	require.Contains(t, it.Message, "hashing failed")
}

func TestManager_ConcurrencyBound(t *testing.T) {
	svc := &fakeService{uploadDelay: 30 * time.Millisecond}
	m := NewManager(svc, testLogger(), nil)

	var paths []string
	for i := 0; i < 6; i++ {
		paths = append(paths, writeTempFile(t, "f.jpg", time.Now().String()+string(rune('a'+i))))
	}
	m.Add(paths)

	m.Start(context.Background(), Options{MaxConcurrency: 2})
	waitIdle(t, m)

	require.LessOrEqual(t, atomic.LoadInt32(&svc.maxInFlight), int32(2))
	for _, it := range m.Items() {
		require.Equal(t, StatusCompleted, it.Status)
	}
}

func TestManager_CancelAll(t *testing.T) {
	svc := &fakeService{uploadDelay: time.Second}
	m := NewManager(svc, testLogger(), nil)

	var paths []string
	for i := 0; i < 3; i++ {
		paths = append(paths, writeTempFile(t, "f.jpg", string(rune('a'+i))))
	}
	m.Add(paths)
	m.Start(context.Background(), Options{MaxConcurrency: 1})

	time.Sleep(20 * time.Millisecond)
	m.CancelAll()
	waitIdle(t, m)

	for _, it := range m.Items() {
		require.Equal(t, StatusCancelled, it.Status)
	}
}

func TestManager_CancelAllIncludesFailedItems(t *testing.T) {
	svc := &fakeService{uploadErr: errors.New("connection reset")}
	m := NewManager(svc, testLogger(), nil)
	p := writeTempFile(t, "a.jpg", "x")
	added := m.Add([]string{p})

	m.Start(context.Background(), Options{})
	waitIdle(t, m)
	it, _ := m.Find(added[0].ID)
	require.Equal(t, StatusError, it.Status)

	// A failed item is not final until retried or cancelled.
	m.CancelAll()
	it, _ = m.Find(added[0].ID)
	require.Equal(t, StatusCancelled, it.Status)
}

func TestManager_PauseStopsDispatch(t *testing.T) {
	svc := &fakeService{uploadDelay: 30 * time.Millisecond}
	m := NewManager(svc, testLogger(), nil)

	var paths []string
	for i := 0; i < 4; i++ {
		paths = append(paths, writeTempFile(t, "f.jpg", string(rune('a'+i))))
	}
	m.Add(paths)
	m.Start(context.Background(), Options{MaxConcurrency: 1})

	time.Sleep(10 * time.Millisecond)
	m.Pause()
	waitIdle(t, m)

	queued := 0
	for _, it := range m.Items() {
		if it.Status == StatusQueued {
			queued++
		}
	}
	require.Greater(t, queued, 0)

	m.Resume(context.Background())
	waitIdle(t, m)
	for _, it := range m.Items() {
		require.Equal(t, StatusCompleted, it.Status)
	}
}

func TestManager_DeleteAfterUpload(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc, testLogger(), nil)
	p := writeTempFile(t, "a.jpg", "bytes")
	m.Add([]string{p})

	m.Start(context.Background(), Options{DeleteAfterUpload: true})
	waitIdle(t, m)

	it := m.Items()[0]
	require.Equal(t, StatusCompleted, it.Status)
	require.True(t, it.Deleted)
	_, err := os.Stat(p)
	require.True(t, os.IsNotExist(err))
	// Duplicate check plus the pre-delete confirmation.
	require.Equal(t, int32(2), atomic.LoadInt32(&svc.findCalls))
}

func TestManager_DeleteSkippedWithoutRemoteConfirmation(t *testing.T) {
	svc := &fakeService{commitSkipsRegister: true}
	m := NewManager(svc, testLogger(), nil)
	p := writeTempFile(t, "a.jpg", "bytes")
	m.Add([]string{p})

	m.Start(context.Background(), Options{DeleteAfterUpload: true})
	waitIdle(t, m)

	it := m.Items()[0]
	require.Equal(t, StatusCompleted, it.Status)
	require.False(t, it.Deleted)
	_, err := os.Stat(p)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&svc.findCalls))
}

func TestManager_DeleteSkippedWhenRemoveFails(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc, testLogger(), nil)
	m.removeFile = func(string) error { return errors.New("permission denied") }

	p := writeTempFile(t, "a.jpg", "bytes")
	m.Add([]string{p})

	m.Start(context.Background(), Options{DeleteAfterUpload: true})
	waitIdle(t, m)

	it := m.Items()[0]
	require.Equal(t, StatusCompleted, it.Status)
	require.False(t, it.Deleted)
	_, err := os.Stat(p)
	require.NoError(t, err)
}

func TestManager_AddSkipsActiveDuplicatePaths(t *testing.T) {
	m := NewManager(&fakeService{}, testLogger(), nil)
	p := writeTempFile(t, "a.jpg", "x")

	first := m.Add([]string{p})
	second := m.Add([]string{p})
	require.Len(t, first, 1)
	require.Len(t, second, 0)
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		item Item
		want string
	}{
		{Item{Status: StatusQueued}, "Queued"},
		{Item{Status: StatusHashing}, "Hashing..."},
		{Item{Status: StatusChecking}, "Checking library..."},
		{Item{Status: StatusUploading, Progress: 0.42}, "42%"},
		{Item{Status: StatusFinalizing}, "Finalizing..."},
		{Item{Status: StatusCompleted}, "Done"},
		{Item{Status: StatusDuplicate}, "Duplicate"},
		{Item{Status: StatusError, Message: "commit failed: boom"}, "commit failed: boom"},
		{Item{Status: StatusCancelled}, "Cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.item.StatusText())
		})
	}
}
