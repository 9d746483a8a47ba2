package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guardianlabs/mindcore-go/pkg/llm"
)

// DefaultRoles describes the built-in guardian council. Role text anchors
// each participant's perspective prompt.
var DefaultRoles = map[string]string{
	"gabriel": "the messenger: direct, pragmatic, focused on clear next actions",
	"michael": "the protector: cautious, weighs risks and worst cases first",
	"raphael": "the healer: empathetic, centers wellbeing and relationships",
	"uriel":   "the scholar: analytical, grounds arguments in evidence",
}

// fallbackRole covers participants without a configured role.
const fallbackRole = "a thoughtful advisor with a balanced point of view"

// Engine runs deliberations over a text-generation provider.
type Engine struct {
	llm    llm.Provider
	logger *zap.Logger

	mu    sync.RWMutex
	roles map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRoles replaces the role table.
func WithRoles(roles map[string]string) Option {
	return func(e *Engine) {
		e.roles = make(map[string]string, len(roles))
		for id, role := range roles {
			e.roles[id] = role
		}
	}
}

// NewEngine creates a consensus engine with the default guardian roles. The
// role table is copied, so SetRole never touches DefaultRoles or any other
// engine.
func NewEngine(provider llm.Provider, opts ...Option) *Engine {
	roles := make(map[string]string, len(DefaultRoles))
	for id, role := range DefaultRoles {
		roles[id] = role
	}
	e := &Engine{
		llm:    provider,
		logger: zap.NewNop(),
		roles:  roles,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRole registers or replaces one participant's role description.
func (e *Engine) SetRole(agentID, role string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.roles == nil {
		e.roles = make(map[string]string)
	}
	e.roles[agentID] = role
}

// Deliberate gathers each participant's first-person perspective on the
// query concurrently, synthesizes one balanced recommendation over the
// perspectives that succeeded, and extracts action items from it.
//
// One participant's failure is dropped, not fatal: fewer transcripts simply
// result. If every perspective call fails, a deterministic no-consensus
// result is returned with a nil error. A failure in the synthesis step, by
// contrast, fails the whole call.
func (e *Engine) Deliberate(ctx context.Context, query, background string, participants []string) (*DeliberationResult, error) {
	result := &DeliberationResult{Query: query}
	if len(participants) == 0 {
		result.Consensus = noConsensusText
		return result, nil
	}

	transcripts := make([]*Transcript, len(participants))
	g, gctx := errgroup.WithContext(ctx)
	for i, agentID := range participants {
		i, agentID := i, agentID
		g.Go(func() error {
			transcript, err := e.perspective(gctx, agentID, query, background)
			if err != nil {
				e.logger.Warn("perspective call failed, dropping participant",
					zap.String("agent", agentID),
					zap.Error(err))
				return nil
			}
			transcripts[i] = transcript
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("consensus: %w", err)
	}

	for _, transcript := range transcripts {
		if transcript != nil {
			result.Transcripts = append(result.Transcripts, *transcript)
		}
	}

	if len(result.Transcripts) == 0 {
		result.Consensus = noConsensusText
		return result, nil
	}

	consensus, err := e.synthesize(ctx, query, result.Transcripts)
	if err != nil {
		return nil, fmt.Errorf("consensus: synthesis: %w", err)
	}
	result.Consensus = consensus
	result.ActionItems = e.actionItems(ctx, consensus)

	return result, nil
}

// noConsensusText is the deterministic result when no perspective survives.
const noConsensusText = "No consensus could be reached: no participant perspectives were available."

func (e *Engine) role(agentID string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if role, ok := e.roles[agentID]; ok {
		return role
	}
	return fallbackRole
}

func (e *Engine) perspective(ctx context.Context, agentID, query, background string) (*Transcript, error) {
	systemPrompt := fmt.Sprintf(
		"You are %s, %s. Give your first-person perspective on the question. End with a single line starting with \"Summary:\" that digests your view in one sentence.",
		agentID, e.role(agentID))

	userPrompt := query
	if background != "" {
		userPrompt = fmt.Sprintf("Background: %s\n\nQuestion: %s", background, query)
	}

	content, err := e.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.WithMaxTokens(300))
	if err != nil {
		return nil, err
	}

	return &Transcript{
		AgentID:            agentID,
		Content:            content,
		PerspectiveSummary: summaryLine(content),
	}, nil
}

func (e *Engine) synthesize(ctx context.Context, query string, transcripts []Transcript) (string, error) {
	var sb strings.Builder
	for _, transcript := range transcripts {
		fmt.Fprintf(&sb, "%s:\n%s\n\n", transcript.AgentID, transcript.Content)
	}

	return e.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: "You moderate a council. Summarize where the perspectives differ, produce one balanced recommendation, and note the level of agreement (high, mixed, or low)."},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nPerspectives:\n%s", query, sb.String())},
	}, llm.WithMaxTokens(400))
}

// actionItems asks for a typed JSON list of follow-ups. Free-text prefix
// parsing survives only as a fallback adapter at the model boundary.
func (e *Engine) actionItems(ctx context.Context, consensus string) []string {
	response, err := e.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: `Extract concrete action items from the recommendation. Return JSON only: {"action_items": ["..."]}. Return an empty list if there are none.`},
		{Role: "user", Content: consensus},
	}, llm.WithMaxTokens(200))
	if err != nil {
		e.logger.Warn("action item extraction failed, falling back to line parsing", zap.Error(err))
		return parseActionLines(consensus)
	}

	items, err := parseActionItemsJSON(response)
	if err != nil {
		e.logger.Warn("action item response malformed, falling back to line parsing", zap.Error(err))
		return parseActionLines(response)
	}
	return items
}

func parseActionItemsJSON(response string) ([]string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var decoded struct {
		ActionItems []string `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &decoded); err != nil {
		return nil, fmt.Errorf("decode action items: %w", err)
	}
	return decoded.ActionItems, nil
}

// parseActionLines is the legacy line-prefix adapter: bullet or numbered
// lines become action items.
func parseActionLines(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"- ", "* ", "1. ", "2. ", "3. ", "4. ", "5. "} {
			if strings.HasPrefix(line, prefix) {
				items = append(items, strings.TrimSpace(strings.TrimPrefix(line, prefix)))
				break
			}
		}
	}
	return items
}

func summaryLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Summary:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Summary:"))
		}
	}

	// No marker; fall back to the first non-empty line.
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
