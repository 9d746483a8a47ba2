package consensus_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianlabs/mindcore-go/pkg/consensus"
	"github.com/guardianlabs/mindcore-go/pkg/llm"
)

// routedLLM picks a response by inspecting the system prompt, so concurrent
// perspective calls stay deterministic regardless of scheduling.
type routedLLM struct {
	perspectives    map[string]string
	perspectiveErrs map[string]error
	synthesis       string
	synthesisErr    error
	actions         string
	actionsErr      error
}

func (r *routedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return r.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (r *routedLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	system := messages[0].Content
	switch {
	case strings.Contains(system, "moderate a council"):
		return r.synthesis, r.synthesisErr
	case strings.Contains(system, "action items"):
		return r.actions, r.actionsErr
	default:
		for agentID, response := range r.perspectives {
			if strings.Contains(system, "You are "+agentID) {
				return response, nil
			}
		}
		for agentID, err := range r.perspectiveErrs {
			if strings.Contains(system, "You are "+agentID) {
				return "", err
			}
		}
		return "", errors.New("no route for prompt")
	}
}

func (r *routedLLM) Close() error { return nil }

func TestDeliberateGathersAllPerspectives(t *testing.T) {
	provider := &routedLLM{
		perspectives: map[string]string{
			"gabriel": "Act now.\nSummary: move quickly",
			"michael": "Be careful.\nSummary: weigh the risks",
		},
		synthesis: "Move quickly but post a watch. Agreement: mixed.",
		actions:   `{"action_items": ["post a watch", "move tonight"]}`,
	}
	engine := consensus.NewEngine(provider)

	result, err := engine.Deliberate(context.Background(), "Should we act tonight?", "", []string{"gabriel", "michael"})
	require.NoError(t, err)

	require.Len(t, result.Transcripts, 2)
	assert.Equal(t, "gabriel", result.Transcripts[0].AgentID)
	assert.Equal(t, "move quickly", result.Transcripts[0].PerspectiveSummary)
	assert.Equal(t, "michael", result.Transcripts[1].AgentID)
	assert.Equal(t, "weigh the risks", result.Transcripts[1].PerspectiveSummary)
	assert.Equal(t, "Move quickly but post a watch. Agreement: mixed.", result.Consensus)
	assert.Equal(t, []string{"post a watch", "move tonight"}, result.ActionItems)
}

func TestDeliberateDropsFailedParticipant(t *testing.T) {
	provider := &routedLLM{
		perspectives: map[string]string{
			"gabriel": "Act now.\nSummary: move quickly",
			"raphael": "Mind everyone's rest.\nSummary: protect the evening",
		},
		perspectiveErrs: map[string]error{
			"michael": errors.New("model timeout"),
		},
		synthesis: "Proceed gently. Agreement: high.",
		actions:   `{"action_items": []}`,
	}
	engine := consensus.NewEngine(provider)

	result, err := engine.Deliberate(context.Background(), "What about dinner?", "", []string{"gabriel", "michael", "raphael"})
	require.NoError(t, err)

	require.Len(t, result.Transcripts, 2, "failed participant is dropped, not fatal")
	assert.Equal(t, "gabriel", result.Transcripts[0].AgentID)
	assert.Equal(t, "raphael", result.Transcripts[1].AgentID)
	assert.Equal(t, "Proceed gently. Agreement: high.", result.Consensus)
}

func TestDeliberateAllFailYieldsNoConsensus(t *testing.T) {
	provider := &routedLLM{
		perspectiveErrs: map[string]error{
			"gabriel": errors.New("down"),
			"michael": errors.New("down"),
		},
	}
	engine := consensus.NewEngine(provider)

	result, err := engine.Deliberate(context.Background(), "Anyone there?", "", []string{"gabriel", "michael"})
	require.NoError(t, err, "all-fail is not an error")

	assert.Empty(t, result.Transcripts)
	assert.Empty(t, result.ActionItems)
	assert.Contains(t, result.Consensus, "No consensus")
}

func TestDeliberateNoParticipants(t *testing.T) {
	engine := consensus.NewEngine(&routedLLM{})

	result, err := engine.Deliberate(context.Background(), "Empty room?", "", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Transcripts)
	assert.Contains(t, result.Consensus, "No consensus")
}

func TestDeliberateSynthesisFailureIsAnError(t *testing.T) {
	provider := &routedLLM{
		perspectives: map[string]string{
			"gabriel": "Fine.\nSummary: fine",
		},
		synthesisErr: errors.New("model offline"),
	}
	engine := consensus.NewEngine(provider)

	_, err := engine.Deliberate(context.Background(), "Thoughts?", "", []string{"gabriel"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis")
}

func TestActionItemsFallBackToLineParsing(t *testing.T) {
	provider := &routedLLM{
		perspectives: map[string]string{
			"gabriel": "Fine.\nSummary: fine",
		},
		synthesis: "Do these things:\n- lock the doors\n- call the neighbors",
		actionsErr: errors.New("extraction unavailable"),
	}
	engine := consensus.NewEngine(provider)

	result, err := engine.Deliberate(context.Background(), "What next?", "", []string{"gabriel"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lock the doors", "call the neighbors"}, result.ActionItems)
}

func TestActionItemsMalformedJSONFallsBackOnResponseLines(t *testing.T) {
	provider := &routedLLM{
		perspectives: map[string]string{
			"gabriel": "Fine.\nSummary: fine",
		},
		synthesis: "All set. Agreement: high.",
		actions:   "Not JSON, but:\n1. water the plants\n2. close the windows",
	}
	engine := consensus.NewEngine(provider)

	result, err := engine.Deliberate(context.Background(), "Chores?", "", []string{"gabriel"})
	require.NoError(t, err)
	assert.Equal(t, []string{"water the plants", "close the windows"}, result.ActionItems)
}

func TestSetRoleDoesNotMutateDefaults(t *testing.T) {
	original := consensus.DefaultRoles["gabriel"]

	first := consensus.NewEngine(&routedLLM{})
	first.SetRole("gabriel", "the night watchman")
	second := consensus.NewEngine(&routedLLM{})
	second.SetRole("gabriel", "the day watchman")

	assert.Equal(t, original, consensus.DefaultRoles["gabriel"])
}

func TestCustomRoles(t *testing.T) {
	provider := &routedLLM{
		perspectives: map[string]string{
			"ada": "Compute it.\nSummary: run the numbers",
		},
		synthesis: "Run the numbers. Agreement: high.",
		actions:   `{"action_items": []}`,
	}
	engine := consensus.NewEngine(provider,
		consensus.WithRoles(map[string]string{"ada": "the analyst"}))
	engine.SetRole("ada", "the lead analyst")

	result, err := engine.Deliberate(context.Background(), "Numbers?", "", []string{"ada"})
	require.NoError(t, err)
	require.Len(t, result.Transcripts, 1)
	assert.Equal(t, "run the numbers", result.Transcripts[0].PerspectiveSummary)
}
