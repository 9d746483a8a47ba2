// Package bus provides the single ordered event queue connecting the
// cognitive components to each other and to outer layers (UI,
// observability).
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the category of a bus event.
type EventType string

const (
	// EventMessage is an inbound or outbound conversational message.
	EventMessage EventType = "message"

	// EventMissionCreated fires when a mission is opened on the board.
	EventMissionCreated EventType = "mission_created"

	// EventStepUpdated fires on step creation and every step mutation.
	EventStepUpdated EventType = "step_updated"

	// EventMissionCompleted fires exactly once when every step of a
	// mission completes.
	EventMissionCompleted EventType = "mission_completed"

	// EventSystemAlert is a cross-subsystem injection notification.
	EventSystemAlert EventType = "system_alert"

	// EventError reports a component failure worth surfacing.
	EventError EventType = "error"
)

// Event is one notification on the bus.
//
// Events are ephemeral: the bus itself persists nothing, and a subscriber
// registered after publication never sees the event.
type Event struct {
	// ID is a unique event identifier.
	ID string `json:"id"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Sender names the agent or component that published the event.
	Sender string `json:"sender"`

	// Payload carries open string-keyed event data.
	Payload map[string]interface{} `json:"payload"`
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(eventType EventType, sender string, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      eventType,
		Sender:    sender,
		Payload:   payload,
	}
}
