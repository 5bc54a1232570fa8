// Package history records lifecycle events of dev servers started or stopped
// by devctl.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
	EventKill  EventType = "kill"
)

// Event is one lifecycle transition.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid"`
	Service    string    `json:"service,omitempty"`
	Ports      []int     `json:"ports,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader lists recorded events, newest first.
type Reader interface {
	List(ctx context.Context, limit int) ([]Event, error)
}

// Nop discards events.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }

func (Nop) List(context.Context, int) ([]Event, error) { return nil, nil }
