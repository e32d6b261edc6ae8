// Package event holds what flows through the relay besides messages at rest:
// the realtime wire events exchanged with clients and the telemetry events
// consumed by the telemetry worker.
package event

import (
	"sync"
	"time"
)

type Type string

// Event is a telemetry record. Payload type depends on Type.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

func New(t Type, payload any) Event {
	return Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}
}

// Counter is shared by handlers counting occurrences per event type.
type Counter struct {
	mu     sync.Mutex
	counts map[Type]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[Type]int)}
}

func (c *Counter) Increment(t Type) {
	c.Add(t, 1)
}

func (c *Counter) Add(t Type, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[t] += n
}

func (c *Counter) Get(t Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}
