package history

import (
	"context"
	"time"
)

// EventType defines the kind of supervision event.
type EventType string

const (
	EventStart  EventType = "start"
	EventStop   EventType = "stop"
	EventHealth EventType = "health"
)

// Event is one supervision record to be exported to external systems:
// a process spawn, a termination signal, or a website health probe.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Label      string    `json:"label"`
	PID        int       `json:"pid,omitempty"`
	OK         bool      `json:"ok"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for supervision events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
