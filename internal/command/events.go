package command

import (
	"github.com/google/uuid"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

// EventType identifies a command lifecycle event.
type EventType string

const (
	// EventExecuted fires after a command was accepted by the device.
	EventExecuted EventType = "executed"
	// EventRetry fires before each retry of a failed send.
	EventRetry EventType = "retry"
	// EventMaxRetriesReached fires when a command is dropped after
	// exhausting its retry budget.
	EventMaxRetriesReached EventType = "max_retries_reached"
)

// Event carries the details of a command lifecycle transition.
// Logging and telemetry subscribe to these instead of being baked into
// the dispatch path.
type Event struct {
	Type      EventType
	CommandID uuid.UUID
	Options   ac.Options
	Attempt   int
	Err       error
}
