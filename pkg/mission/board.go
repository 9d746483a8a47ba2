package mission

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardianlabs/mindcore-go/pkg/bus"
)

// Predefined errors surfaced to callers. Unknown identifiers are explicit
// failures, never swallowed.
var (
	// ErrMissionNotFound indicates an unknown mission ID.
	ErrMissionNotFound = errors.New("mission not found")

	// ErrStepNotFound indicates an unknown step ID within a mission.
	ErrStepNotFound = errors.New("mission step not found")

	// ErrMissionClosed indicates a mutation against a completed or failed
	// mission.
	ErrMissionClosed = errors.New("mission already closed")
)

// Board is the shared mission blackboard.
//
// All state lives behind one mutex; lifecycle notifications go out on the
// event bus after the state change is committed.
type Board struct {
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	missions map[string]*Mission
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithLogger sets the board logger.
func WithLogger(logger *zap.Logger) BoardOption {
	return func(b *Board) {
		b.logger = logger
	}
}

// WithClock overrides the board's time source. Intended for tests.
func WithClock(now func() time.Time) BoardOption {
	return func(b *Board) {
		b.now = now
	}
}

// NewBoard creates an empty mission board publishing on the given bus.
func NewBoard(eventBus *bus.Bus, opts ...BoardOption) *Board {
	b := &Board{
		bus:      eventBus,
		logger:   zap.NewNop(),
		now:      time.Now,
		missions: make(map[string]*Mission),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateMission opens an active mission with the initiator as its only
// participant and publishes mission_created.
func (b *Board) CreateMission(title, objective, initiatorID string) *Mission {
	now := b.now()
	m := &Mission{
		ID:           uuid.NewString(),
		Title:        title,
		Objective:    objective,
		InitiatorID:  initiatorID,
		Participants: []string{initiatorID},
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	b.mu.Lock()
	b.missions[m.ID] = m
	snapshot := cloneMission(m)
	b.mu.Unlock()

	b.logger.Info("mission created",
		zap.String("mission_id", m.ID),
		zap.String("title", title),
		zap.String("initiator", initiatorID))

	b.bus.Publish(bus.NewEvent(bus.EventMissionCreated, initiatorID, map[string]interface{}{
		"mission_id": m.ID,
		"title":      title,
		"objective":  objective,
	}))

	return snapshot
}

// AddStep appends a pending step and enrolls the assignee into the mission's
// participant set if absent. Publishes step_updated.
func (b *Board) AddStep(missionID, assignee, task string) (*MissionStep, error) {
	b.mu.Lock()
	m, ok := b.missions[missionID]
	if !ok {
		b.mu.Unlock()
		return nil, ErrMissionNotFound
	}
	if m.Status != StatusActive {
		b.mu.Unlock()
		return nil, ErrMissionClosed
	}

	step := &MissionStep{
		ID:        uuid.NewString(),
		Assignee:  assignee,
		Task:      task,
		Status:    StepPending,
		CreatedAt: b.now(),
	}
	m.Steps = append(m.Steps, step)
	if !m.hasParticipant(assignee) {
		m.Participants = append(m.Participants, assignee)
	}
	m.UpdatedAt = b.now()
	snapshot := cloneStep(step)
	b.mu.Unlock()

	b.bus.Publish(bus.NewEvent(bus.EventStepUpdated, assignee, map[string]interface{}{
		"mission_id": missionID,
		"step_id":    step.ID,
		"task":       task,
		"status":     string(StepPending),
	}))

	return snapshot, nil
}

// UpdateStep mutates a step's status and optional output, publishes
// step_updated, then evaluates the completion invariant. When every step of
// a non-empty mission first reaches completed, the mission transitions to
// completed and mission_completed is published exactly once.
//
// A step reaching failed changes only that step: the mission stays active
// until someone either completes the remaining work or calls FailMission.
// Steps of a completed or failed mission are frozen; updating one returns
// ErrMissionClosed.
func (b *Board) UpdateStep(missionID, stepID string, status StepStatus, output string) error {
	b.mu.Lock()
	m, ok := b.missions[missionID]
	if !ok {
		b.mu.Unlock()
		return ErrMissionNotFound
	}
	if m.Status != StatusActive {
		b.mu.Unlock()
		return ErrMissionClosed
	}

	var step *MissionStep
	for _, s := range m.Steps {
		if s.ID == stepID {
			step = s
			break
		}
	}
	if step == nil {
		b.mu.Unlock()
		return ErrStepNotFound
	}

	now := b.now()
	step.Status = status
	if output != "" {
		step.Output = output
	}
	if status == StepCompleted && step.CompletedAt == nil {
		step.CompletedAt = &now
	}
	m.UpdatedAt = now

	completed := m.Status == StatusActive && m.allStepsCompleted()
	if completed {
		m.Status = StatusCompleted
		m.FinalOutcome = collectOutputs(m)
	}
	assignee := step.Assignee
	b.mu.Unlock()

	b.bus.Publish(bus.NewEvent(bus.EventStepUpdated, assignee, map[string]interface{}{
		"mission_id": missionID,
		"step_id":    stepID,
		"status":     string(status),
		"output":     output,
	}))

	if completed {
		b.logger.Info("mission completed", zap.String("mission_id", missionID))
		b.bus.Publish(bus.NewEvent(bus.EventMissionCompleted, assignee, map[string]interface{}{
			"mission_id": missionID,
		}))
	}

	return nil
}

// AddEvidence appends a supporting finding to a mission. No event is
// published for evidence.
func (b *Board) AddEvidence(missionID string, item EvidenceItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.missions[missionID]
	if !ok {
		return ErrMissionNotFound
	}

	m.Evidence = append(m.Evidence, item)
	m.UpdatedAt = b.now()
	return nil
}

// FailMission moves an active mission to the failed terminal state with an
// explanatory outcome and publishes a system_alert. Completion never fires
// for a failed mission.
func (b *Board) FailMission(missionID, reason string) error {
	b.mu.Lock()
	m, ok := b.missions[missionID]
	if !ok {
		b.mu.Unlock()
		return ErrMissionNotFound
	}
	if m.Status != StatusActive {
		b.mu.Unlock()
		return ErrMissionClosed
	}

	m.Status = StatusFailed
	m.FinalOutcome = reason
	m.UpdatedAt = b.now()
	initiator := m.InitiatorID
	b.mu.Unlock()

	b.logger.Info("mission failed",
		zap.String("mission_id", missionID),
		zap.String("reason", reason))

	b.bus.Publish(bus.NewEvent(bus.EventSystemAlert, initiator, map[string]interface{}{
		"mission_id": missionID,
		"reason":     reason,
	}))

	return nil
}

// Get returns a snapshot copy of a mission.
func (b *Board) Get(missionID string) (*Mission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.missions[missionID]
	if !ok {
		return nil, ErrMissionNotFound
	}
	return cloneMission(m), nil
}

// List returns snapshot copies of every mission, optionally filtered by
// status. Pass an empty status for all missions.
func (b *Board) List(status Status) []*Mission {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Mission
	for _, m := range b.missions {
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, cloneMission(m))
	}
	return out
}

func collectOutputs(m *Mission) string {
	outcome := ""
	for _, step := range m.Steps {
		if step.Output == "" {
			continue
		}
		if outcome != "" {
			outcome += "; "
		}
		outcome += step.Output
	}
	return outcome
}

func cloneMission(m *Mission) *Mission {
	clone := *m
	clone.Participants = append([]string(nil), m.Participants...)
	clone.Evidence = append([]EvidenceItem(nil), m.Evidence...)
	clone.Steps = make([]*MissionStep, len(m.Steps))
	for i, step := range m.Steps {
		clone.Steps[i] = cloneStep(step)
	}
	return &clone
}

func cloneStep(step *MissionStep) *MissionStep {
	clone := *step
	if step.CompletedAt != nil {
		t := *step.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}
