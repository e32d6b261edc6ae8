package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
)

// ConnectionSink is the bounded outbound queue of one live connection.
// The transport drains Events() in order; producers never wait on it.
type ConnectionSink struct {
	mu     sync.RWMutex
	id     domain.ConnectionID
	log    *slog.Logger
	events chan event.Outbound
	done   chan struct{}
	closed bool
}

func NewConnectionSink(id domain.ConnectionID, log *slog.Logger, bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		id:     id,
		log:    log.With("connection_id", id),
		events: make(chan event.Outbound, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) ID() domain.ConnectionID {
	return s.id
}

// Push enqueues without blocking.
// A full queue gives ErrBackpressure, a closed sink ErrConnectionClosed.
func (s *ConnectionSink) Push(ctx context.Context, out event.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrConnectionClosed
	}
	select {
	case s.events <- out:
		return nil
	default:
		return errors.ErrBackpressure
	}
}

// Events is drained by the connection writer.
func (s *ConnectionSink) Events() <-chan event.Outbound {
	return s.events
}

// Done is closed once the sink is closed.
func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

func (s *ConnectionSink) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close rejects any further push and drops what is still queued.
// Calling it more than once is harmless.
func (s *ConnectionSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	dropped := 0
	for {
		select {
		case out := <-s.events:
			dropped++
			s.log.Debug("outbound event dropped on close", "event", out.Event)
		default:
			if dropped > 0 {
				s.log.Info("connection closed with pending events", "dropped", dropped)
			}
			return
		}
	}
}
