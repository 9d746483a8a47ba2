// Package mission implements the shared blackboard of multi-step,
// multi-agent units of work.
package mission

import "time"

// Status is the lifecycle state of a mission.
type Status string

const (
	// StatusActive is the initial state of every mission.
	StatusActive Status = "active"

	// StatusCompleted means every step completed. Set exactly once by the
	// board, never by callers.
	StatusCompleted Status = "completed"

	// StatusFailed is a terminal state set explicitly via FailMission.
	StatusFailed Status = "failed"
)

// StepStatus is the lifecycle state of a mission step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Mission is one unit of coordinated multi-agent work.
//
// Missions are never physically deleted; terminal states archive them in
// place. A mission is completed if and only if it has at least one step and
// every step is completed.
type Mission struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Objective    string         `json:"objective"`
	InitiatorID  string         `json:"initiator_id"`
	Participants []string       `json:"participants"`
	Status       Status         `json:"status"`
	Steps        []*MissionStep `json:"steps"`
	Evidence     []EvidenceItem `json:"evidence"`
	FinalOutcome string         `json:"final_outcome,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MissionStep is one assigned task within a mission.
type MissionStep struct {
	ID          string     `json:"id"`
	Assignee    string     `json:"assignee"`
	Task        string     `json:"task"`
	Status      StepStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EvidenceItem is a supporting finding attached to a mission. MemoryID is a
// back-reference into the contributing agent's experience log, not an
// ownership edge.
type EvidenceItem struct {
	SourceAgent string  `json:"source_agent"`
	MemoryID    int64   `json:"memory_id,omitempty"`
	Content     string  `json:"content"`
	Confidence  float64 `json:"confidence"`
}

// hasParticipant reports membership in the order-preserving participant set.
func (m *Mission) hasParticipant(agentID string) bool {
	for _, p := range m.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// allStepsCompleted implements the completion invariant: non-empty steps,
// every one completed.
func (m *Mission) allStepsCompleted() bool {
	if len(m.Steps) == 0 {
		return false
	}
	for _, step := range m.Steps {
		if step.Status != StepCompleted {
			return false
		}
	}
	return true
}
