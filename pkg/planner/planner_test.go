package planner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianlabs/mindcore-go/pkg/llm"
	"github.com/guardianlabs/mindcore-go/pkg/memory"
	"github.com/guardianlabs/mindcore-go/pkg/memory/journal/memjournal"
	"github.com/guardianlabs/mindcore-go/pkg/planner"
	"github.com/guardianlabs/mindcore-go/pkg/search"
)

// fixedLLM returns the same response for every call.
type fixedLLM struct {
	response string
	err      error
}

func (f *fixedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.response, f.err
}

func (f *fixedLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return f.response, f.err
}

func (f *fixedLLM) Close() error { return nil }

type nullIndex struct{}

func (nullIndex) Upsert(ctx context.Context, doc search.Document) error { return nil }
func (nullIndex) Query(ctx context.Context, query string, limit int, minSimilarity float64) ([]search.Hit, error) {
	return nil, nil
}
func (nullIndex) Close() error { return nil }

func newTestStore(t *testing.T, now time.Time) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(memjournal.New(), nullIndex{},
		memory.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return store
}

var testProfile = planner.AgentProfile{
	AgentID:     "gabriel",
	Name:        "Gabriel",
	Disposition: "direct and pragmatic",
}

func TestGeneratePlanParsesModelJSON(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	provider := &fixedLLM{response: `Here is the agenda you asked for:
{"high_level_goal": "Keep the household safe and calm",
 "steps": [
   {"description": "Review overnight alerts", "duration_minutes": 20},
   {"description": "Walk the perimeter", "duration_minutes": 40},
   {"description": "Check in with the family", "duration_minutes": 30}
 ]}
Let me know if you need changes.`}

	p := planner.New(store, provider,
		planner.WithClock(func() time.Time { return now }))

	plan, err := p.GeneratePlan(context.Background(), testProfile)
	require.NoError(t, err)

	assert.Equal(t, now, plan.Date)
	assert.Equal(t, "Keep the household safe and calm", plan.HighLevelGoal)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "Review overnight alerts", plan.Steps[0].Description)
	assert.Equal(t, 20, plan.Steps[0].DurationMinutes)
	for _, step := range plan.Steps {
		assert.Equal(t, "pending", step.Status)
	}
}

func TestGeneratePlanRecordsPlanMemory(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	provider := &fixedLLM{response: `{"high_level_goal": "Quiet day", "steps": [{"description": "Rest", "duration_minutes": 60}]}`}
	p := planner.New(store, provider,
		planner.WithClock(func() time.Time { return now }))

	_, err := p.GeneratePlan(context.Background(), testProfile)
	require.NoError(t, err)

	records, err := store.Recent(context.Background(), "gabriel", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, memory.KindPlan, records[0].Kind)
	assert.Equal(t, 5.0, records[0].Importance)
	assert.Contains(t, records[0].Tags, "plan")
	assert.Contains(t, records[0].Description, "Quiet day")
}

func TestGeneratePlanFallsBackOnMalformedResponse(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	provider := &fixedLLM{response: "I am not able to produce an agenda right now."}
	p := planner.New(store, provider,
		planner.WithClock(func() time.Time { return now }))

	plan, err := p.GeneratePlan(context.Background(), testProfile)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.NotEmpty(t, plan.HighLevelGoal)
}

func TestGeneratePlanFallsBackOnGenerationError(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	provider := &fixedLLM{err: errors.New("model offline")}
	p := planner.New(store, provider,
		planner.WithClock(func() time.Time { return now }))

	plan, err := p.GeneratePlan(context.Background(), testProfile)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
}

func TestGeneratePlanFallsBackOnEmptySteps(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	provider := &fixedLLM{response: `{"high_level_goal": "Goal with no steps", "steps": []}`}
	p := planner.New(store, provider,
		planner.WithClock(func() time.Time { return now }))

	plan, err := p.GeneratePlan(context.Background(), testProfile)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.NotEqual(t, "Goal with no steps", plan.HighLevelGoal)
}

func TestLatestPlanRetained(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	provider := &fixedLLM{response: `{"high_level_goal": "Only plan", "steps": [{"description": "One step", "duration_minutes": 15}]}`}
	p := planner.New(store, provider,
		planner.WithClock(func() time.Time { return now }))

	assert.Nil(t, p.LatestPlan("gabriel"))

	plan, err := p.GeneratePlan(context.Background(), testProfile)
	require.NoError(t, err)
	assert.Equal(t, plan, p.LatestPlan("gabriel"))
	assert.Nil(t, p.LatestPlan("michael"))
}
