package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guardianlabs/mindcore-go/pkg/bus"
	"github.com/guardianlabs/mindcore-go/pkg/consensus"
	"github.com/guardianlabs/mindcore-go/pkg/embedder"
	hashemb "github.com/guardianlabs/mindcore-go/pkg/embedder/hash"
	openaiemb "github.com/guardianlabs/mindcore-go/pkg/embedder/openai"
	"github.com/guardianlabs/mindcore-go/pkg/llm"
	ollamallm "github.com/guardianlabs/mindcore-go/pkg/llm/ollama"
	openaillm "github.com/guardianlabs/mindcore-go/pkg/llm/openai"
	"github.com/guardianlabs/mindcore-go/pkg/memory"
	"github.com/guardianlabs/mindcore-go/pkg/memory/journal/memjournal"
	pgjournal "github.com/guardianlabs/mindcore-go/pkg/memory/journal/postgres"
	sqlitejournal "github.com/guardianlabs/mindcore-go/pkg/memory/journal/sqlite"
	"github.com/guardianlabs/mindcore-go/pkg/mission"
	"github.com/guardianlabs/mindcore-go/pkg/planner"
	"github.com/guardianlabs/mindcore-go/pkg/reflection"
	"github.com/guardianlabs/mindcore-go/pkg/search"
	chromemindex "github.com/guardianlabs/mindcore-go/pkg/search/chromem"
)

// coordinationTriggers are message fragments that escalate a turn into a
// council deliberation even when the caller did not ask for one.
var coordinationTriggers = []string{
	"ask the others",
	"what does everyone",
	"what do you all",
	"the council",
	"all of you",
}

// Runtime owns one memory store, one event bus, one mission board, and a
// lazily grown set of per-agent reflection engines. Outer layers drive it
// through HandleTurn and HandleSystemEvent.
type Runtime struct {
	cfg    *Config
	logger *zap.Logger
	now    func() time.Time

	llm      llm.Provider
	embedder embedder.Provider
	journal  memory.Journal
	index    search.Index

	store     *memory.Store
	bus       *bus.Bus
	board     *mission.Board
	planner   *planner.Planner
	consensus *consensus.Engine

	timeout time.Duration

	mu     sync.Mutex
	agents map[string]*agentState
	closed bool
}

// agentState is the per-agent cognition created on first contact.
type agentState struct {
	reflect *reflection.Engine
	drift   float64
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the runtime logger. It is passed down to every
// component the runtime constructs.
func WithLogger(logger *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithClock overrides the runtime's time source. Intended for tests.
func WithClock(now func() time.Time) RuntimeOption {
	return func(r *Runtime) {
		r.now = now
	}
}

// WithLLMProvider injects a text-generation provider, bypassing the
// configuration's LLM section.
func WithLLMProvider(provider llm.Provider) RuntimeOption {
	return func(r *Runtime) {
		r.llm = provider
	}
}

// WithEmbedderProvider injects an embedding provider, bypassing the
// configuration's embedder section.
func WithEmbedderProvider(provider embedder.Provider) RuntimeOption {
	return func(r *Runtime) {
		r.embedder = provider
	}
}

// WithJournal injects a journal backend, bypassing the configuration's
// journal section.
func WithJournal(j memory.Journal) RuntimeOption {
	return func(r *Runtime) {
		r.journal = j
	}
}

// WithIndex injects a search index, bypassing the default chromem index.
func WithIndex(idx search.Index) RuntimeOption {
	return func(r *Runtime) {
		r.index = idx
	}
}

// NewRuntime validates the configuration, builds the capability providers
// and journal it names (unless injected), and wires the store, bus, board,
// planner, and consensus engine together.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, NewRuntimeError("NewRuntime", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runtime{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		agents: make(map[string]*agentState),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.timeout = cfg.CallTimeout
	if r.timeout == 0 {
		r.timeout = DefaultCallTimeout
	}

	if r.llm == nil {
		provider, err := buildLLM(&cfg.LLM)
		if err != nil {
			return nil, NewRuntimeError("NewRuntime", err)
		}
		r.llm = provider
	}

	if r.embedder == nil {
		provider, err := buildEmbedder(&cfg.Embedder)
		if err != nil {
			return nil, NewRuntimeError("NewRuntime", err)
		}
		r.embedder = provider
	}

	if r.journal == nil {
		j, err := buildJournal(&cfg.Journal)
		if err != nil {
			return nil, NewRuntimeError("NewRuntime", err)
		}
		r.journal = j
	}

	if r.index == nil {
		idx, err := chromemindex.New(r.embedder)
		if err != nil {
			return nil, NewRuntimeError("NewRuntime", err)
		}
		r.index = idx
	}

	store, err := memory.NewStore(r.journal, r.index,
		memory.WithLogger(r.logger),
		memory.WithClock(r.now))
	if err != nil {
		return nil, NewRuntimeError("NewRuntime", err)
	}
	r.store = store

	r.bus = bus.New(bus.WithLogger(r.logger))
	r.board = mission.NewBoard(r.bus,
		mission.WithLogger(r.logger),
		mission.WithClock(r.now))
	r.planner = planner.New(r.store, r.llm,
		planner.WithLogger(r.logger),
		planner.WithClock(r.now))
	r.consensus = consensus.NewEngine(r.llm,
		consensus.WithLogger(r.logger))

	return r, nil
}

func buildLLM(cfg *LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaillm.NewClient(&openaillm.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return ollamallm.NewClient(&ollamallm.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("llm provider %q: %w", cfg.Provider, ErrUnknownProvider)
	}
}

func buildEmbedder(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiemb.NewClient(&openaiemb.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "hash":
		if cfg.Dimensions > 0 {
			return hashemb.NewWithDimensions(cfg.Dimensions), nil
		}
		return hashemb.New(), nil
	default:
		return nil, fmt.Errorf("embedding provider %q: %w", cfg.Provider, ErrUnknownProvider)
	}
}

func buildJournal(cfg *JournalConfig) (memory.Journal, error) {
	switch cfg.Provider {
	case "memory":
		return memjournal.New(), nil
	case "sqlite":
		return sqlitejournal.New(&sqlitejournal.Config{
			DBPath: cfg.SQLitePath,
		})
	case "postgres":
		return pgjournal.New(&pgjournal.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		})
	default:
		return nil, fmt.Errorf("journal provider %q: %w", cfg.Provider, ErrUnknownProvider)
	}
}

// HandleTurn runs one conversational turn for the named agent.
//
// The inbound message is recorded as an observation (heuristically scored),
// fed to the agent's reflection engine, and answered from the agent's three
// most relevant memories. A coordination request, explicit via the
// coordinate flag or implicit via trigger phrases in the message, runs a
// council deliberation first and folds its recommendation into the reply
// prompt. Reply generation failures are returned to the caller; everything
// else degrades and is logged.
func (r *Runtime) HandleTurn(ctx context.Context, agentID, userID, message string, coordinate bool) (string, error) {
	if r.isClosed() {
		return "", NewRuntimeError("HandleTurn", ErrClosed)
	}

	state := r.cognition(agentID)

	sctx, cancel := r.callContext(ctx)
	inbound, err := r.store.Record(sctx, fmt.Sprintf("%s says: %s", userID, message),
		scoreInboundImportance(message), memory.KindObservation, agentID, []string{"conversation"})
	cancel()
	if err != nil {
		return "", NewRuntimeError("HandleTurn", err)
	}
	r.bus.Publish(bus.NewEvent(bus.EventMessage, userID, map[string]interface{}{
		"to":   agentID,
		"text": message,
	}))

	octx, cancel := r.callContext(ctx)
	if _, err := state.reflect.Observe(octx, inbound); err != nil {
		r.logger.Warn("reflection observe failed", zap.String("agent", agentID), zap.Error(err))
	}
	cancel()

	mctx, cancel := r.callContext(ctx)
	memories, err := r.store.Retrieve(mctx, message, agentID, 3)
	cancel()
	if err != nil {
		r.logger.Warn("memory retrieval failed", zap.String("agent", agentID), zap.Error(err))
	}

	var consensusNote string
	if coordinate || wantsCoordination(message) {
		cctx, cancel := r.callContext(ctx)
		result, err := r.consensus.Deliberate(cctx, message, memoryContext(memories), r.roster())
		cancel()
		if err != nil {
			r.logger.Warn("deliberation failed", zap.Error(err))
		} else {
			consensusNote = result.Consensus
		}
	}

	gctx, cancel := r.callContext(ctx)
	reply, err := r.generateReply(gctx, agentID, userID, message, memories, consensusNote)
	cancel()
	if err != nil {
		return "", NewRuntimeError("HandleTurn", err)
	}

	rctx, cancel := r.callContext(ctx)
	outbound, err := r.store.Record(rctx, fmt.Sprintf("I replied to %s: %s", userID, reply),
		replyImportance, memory.KindObservation, agentID, []string{"conversation"})
	if err != nil {
		r.logger.Warn("reply observation failed", zap.String("agent", agentID), zap.Error(err))
	} else if _, err := state.reflect.Observe(rctx, outbound); err != nil {
		r.logger.Warn("reflection observe failed", zap.String("agent", agentID), zap.Error(err))
	}
	cancel()
	r.bus.Publish(bus.NewEvent(bus.EventMessage, agentID, map[string]interface{}{
		"to":   userID,
		"text": reply,
	}))

	return reply, nil
}

// HandleSystemEvent injects an out-of-band event into one agent's memory,
// or into every known agent's when agentID is empty. Each target records
// the event and runs an immediate reflection pass, and one system_alert
// event is published afterwards.
func (r *Runtime) HandleSystemEvent(ctx context.Context, agentID, description string, importance float64) error {
	if r.isClosed() {
		return NewRuntimeError("HandleSystemEvent", ErrClosed)
	}

	targets := []string{agentID}
	if agentID == "" {
		targets = r.knownAgents()
	}

	for _, target := range targets {
		if err := r.injectSystemEvent(ctx, target, description, importance); err != nil {
			return NewRuntimeError("HandleSystemEvent", err)
		}
	}

	r.bus.Publish(bus.NewEvent(bus.EventSystemAlert, "system", map[string]interface{}{
		"description": description,
		"importance":  importance,
		"agents":      targets,
	}))

	return nil
}

// injectSystemEvent records the event for one target and runs its reflection
// pass under a bounded context. The additional forced synthesis is skipped
// when Observe already crossed the threshold, so one event yields at most one
// reflection record.
func (r *Runtime) injectSystemEvent(ctx context.Context, target, description string, importance float64) error {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	rec, err := r.store.Record(ctx, description, importance,
		memory.KindSystemEvent, target, []string{"system"})
	if err != nil {
		return err
	}

	state := r.cognition(target)
	synthesized, err := state.reflect.Observe(ctx, rec)
	if err != nil {
		r.logger.Warn("reflection observe failed", zap.String("agent", target), zap.Error(err))
	}
	if !synthesized {
		if err := state.reflect.Synthesize(ctx); err != nil {
			r.logger.Warn("forced synthesis failed", zap.String("agent", target), zap.Error(err))
		}
	}
	return nil
}

// Plan generates (and retains) a daily plan for the named agent.
func (r *Runtime) Plan(ctx context.Context, agentID string) (*planner.DailyPlan, error) {
	if r.isClosed() {
		return nil, NewRuntimeError("Plan", ErrClosed)
	}

	pctx, cancel := r.callContext(ctx)
	defer cancel()

	plan, err := r.planner.GeneratePlan(pctx, planner.AgentProfile{
		AgentID:     agentID,
		Name:        agentID,
		Disposition: r.roleFor(agentID),
	})
	if err != nil {
		return nil, NewRuntimeError("Plan", err)
	}
	return plan, nil
}

// Drift returns the accumulated personality drift for an agent.
func (r *Runtime) Drift(agentID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.agents[agentID]; ok {
		return state.drift
	}
	return 0
}

// Store returns the runtime's memory store.
func (r *Runtime) Store() *memory.Store { return r.store }

// Bus returns the runtime's event bus.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// Board returns the runtime's mission board.
func (r *Runtime) Board() *mission.Board { return r.board }

// Planner returns the runtime's planner.
func (r *Runtime) Planner() *planner.Planner { return r.planner }

// Consensus returns the runtime's consensus engine.
func (r *Runtime) Consensus() *consensus.Engine { return r.consensus }

// Close drains the event bus and releases every capability the runtime
// built or was handed.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.bus.Close()

	return errors.Join(
		r.index.Close(),
		r.journal.Close(),
		r.embedder.Close(),
		r.llm.Close(),
	)
}

// cognition returns the agent's reflection state, creating it on first
// contact.
func (r *Runtime) cognition(agentID string) *agentState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.agents[agentID]
	if !ok {
		state = &agentState{}
		state.reflect = reflection.NewEngine(r.store, r.llm, agentID,
			reflection.WithLogger(r.logger),
			reflection.WithClock(r.now),
			reflection.WithDriftFunc(r.applyDrift))
		r.agents[agentID] = state
	}
	return state
}

// applyDrift accumulates a synthesis drift signal onto the agent's state.
func (r *Runtime) applyDrift(agentID string, drift float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.agents[agentID]; ok {
		state.drift += drift
	}
}

// roster is the deliberation participant list.
func (r *Runtime) roster() []string {
	if len(r.cfg.Guardians) > 0 {
		return r.cfg.Guardians
	}
	return DefaultGuardians
}

// knownAgents is the roster plus every agent seen so far.
func (r *Runtime) knownAgents() []string {
	seen := make(map[string]bool)
	var agents []string
	for _, id := range r.roster() {
		if !seen[id] {
			seen[id] = true
			agents = append(agents, id)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.agents {
		if !seen[id] {
			seen[id] = true
			agents = append(agents, id)
		}
	}
	return agents
}

func (r *Runtime) roleFor(agentID string) string {
	if role, ok := consensus.DefaultRoles[agentID]; ok {
		return role
	}
	return "a steady, attentive guardian"
}

func (r *Runtime) generateReply(ctx context.Context, agentID, userID, message string, memories []*memory.Record, consensusNote string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, %s. Reply to %s in character, briefly.\n",
		agentID, r.roleFor(agentID), userID)
	if len(memories) > 0 {
		sb.WriteString("\nrelevant memories:\n")
		for _, rec := range memories {
			fmt.Fprintf(&sb, "- %s\n", rec.Description)
		}
	}
	if consensusNote != "" {
		fmt.Fprintf(&sb, "\ncouncil recommendation:\n%s\n", consensusNote)
	}

	return r.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: message},
	}, llm.WithMaxTokens(400))
}

// callContext bounds an external capability call.
func (r *Runtime) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func wantsCoordination(message string) bool {
	lower := strings.ToLower(message)
	for _, trigger := range coordinationTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// memoryContext flattens retrieved memories into deliberation background.
func memoryContext(memories []*memory.Record) string {
	if len(memories) == 0 {
		return ""
	}
	parts := make([]string, 0, len(memories))
	for _, rec := range memories {
		parts = append(parts, rec.Description)
	}
	return strings.Join(parts, "; ")
}
