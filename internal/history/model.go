// Package history keeps an append-only record of finished uploads so users
// can see what was sent, when, and under which account.
package history

import (
	"context"
	"time"
)

// Entry describes one completed upload.
type Entry struct {
	ID           string
	FileName     string
	FilePath     string
	UploadedAt   time.Time
	MediaKey     string
	WasDeleted   bool
	AccountEmail string
}

// Repository stores upload history entries.
type Repository interface {
	Add(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]*Entry, error)
}
