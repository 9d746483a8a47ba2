package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianlabs/mindcore-go/pkg/memory"
	"github.com/guardianlabs/mindcore-go/pkg/memory/journal/sqlite"
)

var _ memory.Journal = (*sqlite.Journal)(nil)

func newTestJournal(t *testing.T) *sqlite.Journal {
	t.Helper()
	j, err := sqlite.New(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "journal.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func newRecord(id int64, owner string, at time.Time) *memory.Record {
	return &memory.Record{
		ID:           id,
		Description:  "a persisted record",
		CreatedAt:    at,
		LastAccessed: at,
		Importance:   6.0,
		Kind:         memory.KindObservation,
		Owner:        owner,
		Tags:         []string{"persisted"},
	}
}

func TestAppendGetRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx, newRecord(1, "gabriel", at)))

	rec, err := j.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, "gabriel", rec.Owner)
	assert.Equal(t, "a persisted record", rec.Description)
	assert.Equal(t, 6.0, rec.Importance)
	assert.Equal(t, memory.KindObservation, rec.Kind)
	assert.Equal(t, []string{"persisted"}, rec.Tags)
	assert.True(t, rec.CreatedAt.Equal(at))

	_, err = j.Get(ctx, 99)
	assert.ErrorIs(t, err, memory.ErrRecordNotFound)
}

func TestRecentOrderingAndFilter(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx, newRecord(1, "gabriel", base)))
	require.NoError(t, j.Append(ctx, newRecord(2, "michael", base.Add(time.Minute))))
	require.NoError(t, j.Append(ctx, newRecord(3, "gabriel", base.Add(2*time.Minute))))

	records, err := j.Recent(ctx, "gabriel", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].ID)
	assert.Equal(t, int64(1), records[1].ID)

	records, err = j.Recent(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].ID)
	assert.Equal(t, int64(2), records[1].ID)
}

func TestTouchMonotonicAndNotFound(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx, newRecord(1, "gabriel", at)))

	later := at.Add(time.Hour)
	require.NoError(t, j.Touch(ctx, 1, later))

	rec, err := j.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rec.LastAccessed.Equal(later))

	// Stale touch is a no-op, not an error.
	require.NoError(t, j.Touch(ctx, 1, at))
	rec, err = j.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rec.LastAccessed.Equal(later))

	assert.ErrorIs(t, j.Touch(ctx, 99, later), memory.ErrRecordNotFound)
}

func TestNilTagsSurviveRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := newRecord(1, "gabriel", at)
	rec.Tags = nil
	require.NoError(t, j.Append(ctx, rec))

	got, err := j.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
}
