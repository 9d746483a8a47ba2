package reflection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianlabs/mindcore-go/pkg/llm"
	"github.com/guardianlabs/mindcore-go/pkg/memory"
	"github.com/guardianlabs/mindcore-go/pkg/memory/journal/memjournal"
	"github.com/guardianlabs/mindcore-go/pkg/reflection"
	"github.com/guardianlabs/mindcore-go/pkg/search"
)

// scriptedLLM replays canned responses in call order.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (s *scriptedLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.calls >= len(s.responses) {
		return "", errors.New("script exhausted")
	}
	response := s.responses[s.calls]
	s.calls++
	return response, nil
}

func (s *scriptedLLM) Close() error { return nil }

// nullIndex satisfies search.Index without indexing anything.
type nullIndex struct{}

func (nullIndex) Upsert(ctx context.Context, doc search.Document) error { return nil }
func (nullIndex) Query(ctx context.Context, query string, limit int, minSimilarity float64) ([]search.Hit, error) {
	return nil, nil
}
func (nullIndex) Close() error { return nil }

func newTestStore(t *testing.T, now *time.Time) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(memjournal.New(), nullIndex{},
		memory.WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return store
}

func seedObservations(t *testing.T, store *memory.Store, agentID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := store.Record(ctx, "a day in the life", 3.0, memory.KindObservation, agentID, nil)
		require.NoError(t, err)
	}
}

func TestObserveCrossingThresholdSynthesizesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	seedObservations(t, store, "gabriel", 3)

	provider := &scriptedLLM{responses: []string{
		"What pattern keeps repeating in my days?",
		"I notice steady progress and growth in my routines.",
	}}

	var drifts []float64
	engine := reflection.NewEngine(store, provider, "gabriel",
		reflection.WithClock(func() time.Time { return now }),
		reflection.WithDriftFunc(func(agentID string, drift float64) {
			assert.Equal(t, "gabriel", agentID)
			drifts = append(drifts, drift)
		}))

	ctx := context.Background()
	var triggers []bool
	for _, importance := range []float64{40, 40, 30} {
		triggered, err := engine.Observe(ctx, &memory.Record{Importance: importance})
		require.NoError(t, err)
		triggers = append(triggers, triggered)
	}
	assert.Equal(t, []bool{false, false, true}, triggers)

	// Exactly one synthesis, counter reset.
	assert.Zero(t, engine.Pressure())
	assert.Equal(t, now, engine.LastReflection())
	require.Len(t, drifts, 1)
	assert.InDelta(t, 0.04, drifts[0], 1e-9, "progress and growth are both positive words")

	records, err := store.Recent(ctx, "gabriel", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, memory.KindReflection, records[0].Kind)
	assert.Equal(t, 8.5, records[0].Importance)
	assert.Contains(t, records[0].Tags, "reflection")
}

func TestObserveBelowThresholdDoesNothing(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	seedObservations(t, store, "gabriel", 2)

	provider := &scriptedLLM{}
	engine := reflection.NewEngine(store, provider, "gabriel",
		reflection.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		triggered, err := engine.Observe(ctx, &memory.Record{Importance: 40})
		require.NoError(t, err)
		assert.False(t, triggered)
	}

	assert.Equal(t, 80.0, engine.Pressure())
	assert.True(t, engine.LastReflection().IsZero())
	assert.Zero(t, provider.calls)
}

func TestObserveExactlyAtThresholdTriggers(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	seedObservations(t, store, "gabriel", 1)

	provider := &scriptedLLM{responses: []string{
		"What changed?",
		"I see hope in small things.",
	}}
	engine := reflection.NewEngine(store, provider, "gabriel",
		reflection.WithClock(func() time.Time { return now }))

	triggered, err := engine.Observe(context.Background(), &memory.Record{Importance: 100})
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Zero(t, engine.Pressure())
	assert.False(t, engine.LastReflection().IsZero())
}

func TestSynthesizeFallsBackWhenLLMFails(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	seedObservations(t, store, "gabriel", 4)

	provider := &scriptedLLM{err: errors.New("model offline")}
	engine := reflection.NewEngine(store, provider, "gabriel",
		reflection.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	require.NoError(t, engine.Synthesize(ctx))

	records, err := store.Recent(ctx, "gabriel", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, memory.KindReflection, records[0].Kind)
	assert.Contains(t, records[0].Description, "Reflecting on my last 4 experiences")
}

func TestSynthesizeEmptyStoreIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)

	provider := &scriptedLLM{}
	engine := reflection.NewEngine(store, provider, "gabriel",
		reflection.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	require.NoError(t, engine.Synthesize(ctx))

	records, err := store.Recent(ctx, "gabriel", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.True(t, engine.LastReflection().IsZero())
	assert.Zero(t, provider.calls)
}

func TestDriftIsClamped(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	seedObservations(t, store, "gabriel", 2)

	// Seven negative keywords would push -0.14 unclamped.
	provider := &scriptedLLM{responses: []string{
		"What dangers loom?",
		"I fear threat, risk, danger, failure, fear itself, loss, and conflict everywhere.",
	}}

	var got float64
	engine := reflection.NewEngine(store, provider, "gabriel",
		reflection.WithClock(func() time.Time { return now }),
		reflection.WithDriftFunc(func(_ string, drift float64) { got = drift }))

	require.NoError(t, engine.Synthesize(context.Background()))
	assert.InDelta(t, -0.1, got, 1e-9)
}
