// Package uploader runs upload batches against the photo service: it hashes
// files, skips library duplicates, pushes bytes with a bounded worker pool
// and tracks per-item plus overall progress.
package uploader

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an upload item.
type Status int

const (
	StatusQueued Status = iota
	StatusHashing
	StatusChecking
	StatusUploading
	StatusFinalizing
	StatusCompleted
	StatusDuplicate
	StatusError
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusHashing:
		return "hashing"
	case StatusChecking:
		return "checking"
	case StatusUploading:
		return "uploading"
	case StatusFinalizing:
		return "finalizing"
	case StatusCompleted:
		return "completed"
	case StatusDuplicate:
		return "duplicate"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether an item in this status is finished and must not
// transition further.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDuplicate, StatusCancelled:
		return true
	}
	return false
}

// Item is one file scheduled for upload. Fields are owned by the Manager and
// must be read through Manager snapshots.
type Item struct {
	ID       uuid.UUID
	FilePath string
	FileName string

	Status   Status
	Progress float64
	Message  string

	SHA1     []byte
	MediaKey string
	Deleted  bool

	AddedAt    time.Time
	FinishedAt time.Time
}

// StatusText renders a short human-readable state for display.
func (it *Item) StatusText() string {
	switch it.Status {
	case StatusQueued:
		return "Queued"
	case StatusHashing:
		return "Hashing..."
	case StatusChecking:
		return "Checking library..."
	case StatusUploading:
		return fmt.Sprintf("%d%%", int(it.Progress*100))
	case StatusFinalizing:
		return "Finalizing..."
	case StatusCompleted:
		return "Done"
	case StatusDuplicate:
		return "Duplicate"
	case StatusError:
		if it.Message != "" {
			return it.Message
		}
		return "Error"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}
