package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Snapshot is the persisted form of the calendar: ISO calendar-date keys
// ("2006-01-02") mapped to event texts in insertion order.
type Snapshot map[string][]string

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Store reads and replaces the whole snapshot.
type Store interface {
	// Load returns the persisted snapshot. A store that has never been
	// written returns an empty snapshot and a nil error.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the persisted snapshot with snap.
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": JSON document (default)
//   - "sqlite": SQLite database file (build tag sqlite)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
