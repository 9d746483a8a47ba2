// Package consensus implements the fan-out/fan-in deliberation protocol:
// gather per-agent perspectives on a query and synthesize one balanced
// recommendation with action items.
package consensus

// Transcript is one participant's contribution to a deliberation.
type Transcript struct {
	// AgentID identifies the participant.
	AgentID string `json:"agent_id"`

	// Content is the participant's full first-person perspective.
	Content string `json:"content"`

	// PerspectiveSummary is a one-line digest of the perspective.
	PerspectiveSummary string `json:"perspective_summary"`
}

// DeliberationResult is the outcome of one deliberation. Built fresh per
// call and not persisted by the engine.
type DeliberationResult struct {
	// Query is the question that was deliberated.
	Query string `json:"query"`

	// Transcripts holds the surviving perspectives, one per participant
	// whose call succeeded.
	Transcripts []Transcript `json:"transcripts"`

	// Consensus is the synthesized balanced recommendation.
	Consensus string `json:"consensus"`

	// ActionItems are concrete follow-ups extracted from the consensus.
	ActionItems []string `json:"action_items"`
}

// Phase names a stage of the staged deliberation protocol.
type Phase string

const (
	PhaseProposal Phase = "proposal"
	PhaseCritique Phase = "critique"
	PhaseRevision Phase = "revision"
	PhaseVote     Phase = "vote"
)

// Vote is one participant's verdict in the staged protocol's quorum phase.
type Vote struct {
	AgentID   string `json:"agent_id"`
	Approve   bool   `json:"approve"`
	Rationale string `json:"rationale,omitempty"`
}

// Protocol configures the staged proposal/critique/revision/vote
// deliberation. Modeled for forward compatibility; the current Deliberate
// algorithm runs a single perspective-and-synthesis pass and does not
// exercise it.
type Protocol struct {
	// Phases lists the stages to run, in order.
	Phases []Phase `json:"phases"`

	// RequiredVotes is the quorum needed in the vote phase.
	RequiredVotes int `json:"required_votes"`
}
