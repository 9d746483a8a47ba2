package memory

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound indicates a lookup for an unknown record ID.
var ErrRecordNotFound = errors.New("memory record not found")

// Journal is an append-only log of memory records, the source of truth for
// an agent's experience: records are appended, read back, and touched
// (last-access bump), never updated in any other way and never deleted.
// Backends live under journal/: memjournal (in-process), sqlite, postgres.
//
// Implementations must be safe for concurrent use.
type Journal interface {
	// Append writes a new record. Records are immutable once appended.
	Append(ctx context.Context, rec *Record) error

	// Get returns the record with the given ID, or ErrRecordNotFound.
	Get(ctx context.Context, id int64) (*Record, error)

	// Recent returns up to n records newest-first. An empty owner matches
	// every agent.
	Recent(ctx context.Context, owner string, n int) ([]*Record, error)

	// Touch advances a record's LastAccessed timestamp. The timestamp only
	// moves forward; a Touch older than the stored value is ignored.
	Touch(ctx context.Context, id int64, t time.Time) error

	// Close releases journal resources.
	Close() error
}
