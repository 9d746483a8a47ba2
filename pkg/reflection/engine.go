// Package reflection watches an agent's memory store for accumulated
// significance and synthesizes higher-level insight memories.
//
// Every observed record adds its importance to a running counter; crossing a
// fixed threshold triggers a synthesis pass that writes a reflection-kind
// record back into the same store. Reflections feed future reflections, but
// the loop stays bounded because a reflection's importance is a constant,
// never a function of how many reflections came before it.
package reflection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guardianlabs/mindcore-go/pkg/llm"
	"github.com/guardianlabs/mindcore-go/pkg/memory"
)

const (
	// threshold is the accumulated importance that triggers a synthesis.
	threshold = 100.0

	// synthesisWindow is how many recent records a synthesis reads.
	synthesisWindow = 50

	// reflectionImportance is the fixed salience of every synthesized
	// insight. Constant on purpose: it caps the feedback loop.
	reflectionImportance = 8.5

	// driftBound clamps the personality-drift signal to [-driftBound, +driftBound].
	driftBound = 0.1
)

// DriftFunc receives the bounded personality-trait adjustment emitted after
// each synthesis.
type DriftFunc func(agentID string, drift float64)

// Engine is a per-agent reflection engine.
type Engine struct {
	store   *memory.Store
	llm     llm.Provider
	agentID string

	logger *zap.Logger
	now    func() time.Time
	drift  DriftFunc

	mu                  sync.Mutex
	aggregateImportance float64
	lastReflection      time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithDriftFunc registers the downstream consumer of the drift signal.
func WithDriftFunc(fn DriftFunc) Option {
	return func(e *Engine) {
		e.drift = fn
	}
}

// NewEngine creates a reflection engine for one agent over its memory store.
func NewEngine(store *memory.Store, provider llm.Provider, agentID string, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		llm:     provider,
		agentID: agentID,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observe accumulates a record's importance. Crossing the threshold runs a
// synthesis and resets the counter to zero before returning, so a burst of
// observations triggers exactly one reflection per threshold crossing. The
// returned bool reports whether this observation triggered a synthesis, so
// callers forcing their own pass can avoid doubling up.
func (e *Engine) Observe(ctx context.Context, rec *memory.Record) (bool, error) {
	e.mu.Lock()
	e.aggregateImportance += rec.Importance
	trigger := e.aggregateImportance >= threshold
	if trigger {
		e.aggregateImportance = 0
	}
	e.mu.Unlock()

	if !trigger {
		return false, nil
	}

	return true, e.Synthesize(ctx)
}

// Pressure returns the current accumulated importance. Exposed for
// observability; zero right after a synthesis.
func (e *Engine) Pressure() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aggregateImportance
}

// Synthesize reads the agent's most recent records, derives one insight,
// writes it back into the store as a reflection record, and emits the drift
// signal. Text-generation failure substitutes a fixed templated insight so
// the reflection loop never stalls its caller; only a store failure is
// returned.
func (e *Engine) Synthesize(ctx context.Context) error {
	records, err := e.store.Recent(ctx, e.agentID, synthesisWindow)
	if err != nil {
		return fmt.Errorf("reflection: read recent: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	insight := e.deriveInsight(ctx, records)

	rec, err := e.store.Record(ctx, insight, reflectionImportance, memory.KindReflection, e.agentID, []string{"reflection"})
	if err != nil {
		return fmt.Errorf("reflection: write insight: %w", err)
	}

	e.mu.Lock()
	e.lastReflection = e.now()
	e.mu.Unlock()

	drift := driftFromInsight(insight)
	e.logger.Info("reflection synthesized",
		zap.String("agent", e.agentID),
		zap.Int64("record_id", rec.ID),
		zap.Float64("drift", drift))

	if e.drift != nil {
		e.drift(e.agentID, drift)
	}

	return nil
}

// LastReflection returns when the engine last synthesized, zero if never.
func (e *Engine) LastReflection() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReflection
}

// deriveInsight asks the model to pose one probing question about the recent
// records and then answer it. Either call failing falls back to a templated
// insight.
func (e *Engine) deriveInsight(ctx context.Context, records []*memory.Record) string {
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString("- ")
		sb.WriteString(rec.Description)
		sb.WriteString("\n")
	}
	experiences := sb.String()

	question, err := e.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: "You study an agent's recent experiences and pose a single probing question that would reveal a deeper pattern in them. Reply with the question only."},
		{Role: "user", Content: experiences},
	}, llm.WithMaxTokens(100))
	if err != nil {
		e.logger.Warn("insight question generation failed, using template", zap.Error(err))
		return e.templatedInsight(len(records))
	}

	answer, err := e.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: "Answer the question using only the listed experiences. Reply with one concise insight in first person."},
		{Role: "user", Content: fmt.Sprintf("Experiences:\n%s\nQuestion: %s", experiences, question)},
	}, llm.WithMaxTokens(200))
	if err != nil {
		e.logger.Warn("insight answer generation failed, using template", zap.Error(err))
		return e.templatedInsight(len(records))
	}

	return strings.TrimSpace(answer)
}

func (e *Engine) templatedInsight(count int) string {
	return fmt.Sprintf("Reflecting on my last %d experiences, I notice recurring themes worth revisiting when planning my next steps.", count)
}

// driftFromInsight derives a bounded personality-trait delta from keyword
// heuristics: growth and learning language pushes positive, threat and risk
// language pushes negative.
func driftFromInsight(insight string) float64 {
	lower := strings.ToLower(insight)

	positive := []string{"growth", "learn", "improve", "progress", "hope", "success", "trust"}
	negative := []string{"threat", "risk", "danger", "fail", "fear", "loss", "conflict"}

	drift := 0.0
	for _, word := range positive {
		if strings.Contains(lower, word) {
			drift += 0.02
		}
	}
	for _, word := range negative {
		if strings.Contains(lower, word) {
			drift -= 0.02
		}
	}

	if drift > driftBound {
		return driftBound
	}
	if drift < -driftBound {
		return -driftBound
	}
	return drift
}
