package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserIdentity is opaque to the relay and never changes once assigned.
type UserIdentity string

// ConnectionID is unique for the lifetime of the process.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

type ConnectionState int

const (
	Connected ConnectionState = iota
	Bound
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Bound:
		return "bound"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// PushOutcome is the result of one push attempt toward one connection.
type PushOutcome struct {
	ConnectionID ConnectionID
	Err          error
}

// DeliveryReport summarizes a single routing of a message.
type DeliveryReport struct {
	MessageID uuid.UUID
	Recipient UserIdentity
	RoutedAt  time.Time
	Outcomes  []PushOutcome
}

func (r DeliveryReport) Attempted() int { return len(r.Outcomes) }

func (r DeliveryReport) Pushed() int {
	pushed := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			pushed++
		}
	}
	return pushed
}

func (r DeliveryReport) Failed() int { return r.Attempted() - r.Pushed() }

// Offline means the recipient had no live connection when the message was routed.
func (r DeliveryReport) Offline() bool { return len(r.Outcomes) == 0 }
