// Package history exports process lifecycle events to external databases.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
)

// Reasons attached to events.
const (
	ReasonSync    = "sync"
	ReasonKill    = "kill"
	ReasonRestart = "restart"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Repo       string    `json:"repo"`
	Process    string    `json:"process"`
	PID        int32     `json:"pid"`
	Reason     string    `json:"reason"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(t EventType, repo, process string, pid int32, reason string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Repo:       repo,
		Process:    process,
		PID:        pid,
		Reason:     reason,
	}
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
