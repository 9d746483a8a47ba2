// Package memjournal provides an in-process memory.Journal. It is the
// default backend for development and tests; sqlite or postgres back durable
// deployments.
package memjournal

import (
	"context"
	"sync"
	"time"

	"github.com/guardianlabs/mindcore-go/pkg/memory"
)

// Journal is an in-memory append-only record log.
type Journal struct {
	mu      sync.RWMutex
	records []*memory.Record
	byID    map[int64]*memory.Record
}

// New creates an empty in-memory journal.
func New() *Journal {
	return &Journal{
		byID: make(map[int64]*memory.Record),
	}
}

// Append writes a new record.
func (j *Journal) Append(ctx context.Context, rec *memory.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored := cloneRecord(rec)
	j.records = append(j.records, stored)
	j.byID[stored.ID] = stored
	return nil
}

// Get returns a copy of the record with the given ID.
func (j *Journal) Get(ctx context.Context, id int64) (*memory.Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rec, ok := j.byID[id]
	if !ok {
		return nil, memory.ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

// Recent returns up to n records newest-first.
func (j *Journal) Recent(ctx context.Context, owner string, n int) ([]*memory.Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []*memory.Record
	for i := len(j.records) - 1; i >= 0 && len(out) < n; i-- {
		rec := j.records[i]
		if owner != "" && rec.Owner != owner {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// Touch advances a record's LastAccessed timestamp.
func (j *Journal) Touch(ctx context.Context, id int64, t time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, ok := j.byID[id]
	if !ok {
		return memory.ErrRecordNotFound
	}
	if t.After(rec.LastAccessed) {
		rec.LastAccessed = t
	}
	return nil
}

// Close releases resources. Nothing to release in memory.
func (j *Journal) Close() error {
	return nil
}

// cloneRecord copies a record so callers can never mutate journal state.
func cloneRecord(rec *memory.Record) *memory.Record {
	clone := *rec
	if rec.Tags != nil {
		clone.Tags = append([]string(nil), rec.Tags...)
	}
	if rec.Embedding != nil {
		clone.Embedding = append([]float32(nil), rec.Embedding...)
	}
	return &clone
}
