// Package planner derives a short ordered agenda from an agent's recent
// context.
//
// Plans are best-effort: malformed model output or an unavailable model
// yields a fixed default plan, never an error. Only the latest plan per
// agent is retained.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guardianlabs/mindcore-go/pkg/llm"
	"github.com/guardianlabs/mindcore-go/pkg/memory"
)

// contextQuery is what the planner retrieves against before prompting.
const contextQuery = "daily routine priorities threats goals"

// contextLimit is how many memories feed the planning prompt.
const contextLimit = 10

// AgentProfile describes the agent a plan is generated for.
type AgentProfile struct {
	// AgentID identifies the agent.
	AgentID string

	// Name is the agent's display name, used in the prompt.
	Name string

	// Disposition is a short free-text description of the agent's manner.
	Disposition string
}

// PlanStep is one agenda entry.
type PlanStep struct {
	// Description is the step text.
	Description string `json:"description"`

	// DurationMinutes is the estimated effort.
	DurationMinutes int `json:"duration_minutes"`

	// Status tracks execution, starting at "pending".
	Status string `json:"status"`
}

// DailyPlan is a short ordered agenda for one agent.
type DailyPlan struct {
	// Date is the day the plan was generated for.
	Date time.Time `json:"date"`

	// HighLevelGoal is the plan's theme.
	HighLevelGoal string `json:"high_level_goal"`

	// Steps is the ordered agenda.
	Steps []PlanStep `json:"steps"`
}

// Planner generates daily plans from memory context.
type Planner struct {
	store *memory.Store
	llm   llm.Provider

	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	latest map[string]*DailyPlan
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithClock overrides the planner's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// New creates a planner over a memory store and a text-generation provider.
func New(store *memory.Store, provider llm.Provider, opts ...Option) *Planner {
	p := &Planner{
		store:  store,
		llm:    provider,
		logger: zap.NewNop(),
		now:    time.Now,
		latest: make(map[string]*DailyPlan),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GeneratePlan derives a plan from the agent's recent context, records a
// plan-kind memory of it, and retains it as the agent's latest plan.
// Generation or parse failure degrades to a fixed default plan.
func (p *Planner) GeneratePlan(ctx context.Context, profile AgentProfile) (*DailyPlan, error) {
	records, err := p.store.Retrieve(ctx, contextQuery, profile.AgentID, contextLimit)
	if err != nil {
		p.logger.Warn("plan context retrieval failed", zap.String("agent", profile.AgentID), zap.Error(err))
	}

	plan := p.generate(ctx, profile, records)
	plan.Date = p.now()

	summary := planSummary(plan)
	if _, err := p.store.Record(ctx, summary, 5.0, memory.KindPlan, profile.AgentID, []string{"plan"}); err != nil {
		p.logger.Warn("plan memory write failed", zap.String("agent", profile.AgentID), zap.Error(err))
	}

	p.mu.Lock()
	p.latest[profile.AgentID] = plan
	p.mu.Unlock()

	return plan, nil
}

// LatestPlan returns the agent's most recent plan, nil if none was generated
// this process lifetime. Superseded plans are not kept.
func (p *Planner) LatestPlan(agentID string) *DailyPlan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest[agentID]
}

func (p *Planner) generate(ctx context.Context, profile AgentProfile, records []*memory.Record) *DailyPlan {
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString("- ")
		sb.WriteString(rec.Description)
		sb.WriteString("\n")
	}

	systemPrompt := fmt.Sprintf(
		`You plan the day for %s, an agent described as: %s.
From the recent context, produce a short agenda as JSON:
{"high_level_goal": "...", "steps": [{"description": "...", "duration_minutes": 30}]}
Use 3 to 5 steps. Return JSON only.`,
		profile.Name, profile.Disposition)

	response, err := p.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Recent context:\n" + sb.String()},
	}, llm.WithMaxTokens(400))
	if err != nil {
		p.logger.Warn("plan generation failed, using default plan",
			zap.String("agent", profile.AgentID),
			zap.Error(err))
		return defaultPlan()
	}

	plan, err := parsePlanResponse(response)
	if err != nil {
		p.logger.Warn("plan response malformed, using default plan",
			zap.String("agent", profile.AgentID),
			zap.Error(err))
		return defaultPlan()
	}

	return plan
}

// parsePlanResponse extracts the first JSON object from the response and
// decodes it. Models often wrap JSON in prose or code fences.
func parsePlanResponse(response string) (*DailyPlan, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var decoded struct {
		HighLevelGoal string `json:"high_level_goal"`
		Steps         []struct {
			Description     string `json:"description"`
			DurationMinutes int    `json:"duration_minutes"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &decoded); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if decoded.HighLevelGoal == "" || len(decoded.Steps) == 0 {
		return nil, fmt.Errorf("plan missing goal or steps")
	}

	plan := &DailyPlan{HighLevelGoal: decoded.HighLevelGoal}
	for _, step := range decoded.Steps {
		plan.Steps = append(plan.Steps, PlanStep{
			Description:     step.Description,
			DurationMinutes: step.DurationMinutes,
			Status:          "pending",
		})
	}
	return plan, nil
}

// defaultPlan is the deterministic fallback agenda.
func defaultPlan() *DailyPlan {
	return &DailyPlan{
		HighLevelGoal: "Stay present and attend to whoever needs me",
		Steps: []PlanStep{
			{Description: "Review recent conversations and commitments", DurationMinutes: 30, Status: "pending"},
			{Description: "Check in on active missions", DurationMinutes: 30, Status: "pending"},
			{Description: "Remain available for new requests", DurationMinutes: 60, Status: "pending"},
		},
	}
}

func planSummary(plan *DailyPlan) string {
	parts := make([]string, 0, len(plan.Steps)+1)
	parts = append(parts, "Plan: "+plan.HighLevelGoal)
	for _, step := range plan.Steps {
		parts = append(parts, step.Description)
	}
	return strings.Join(parts, "; ")
}
