package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"time"
)

// Router delivers a message to every live connection of its recipient.
// It never waits for a client: each push is an enqueue that either succeeds
// or fails on its own, without affecting the other connections.
type Router struct {
	log       *slog.Logger
	registry  contract.ISessionRegistry
	telemetry chan event.Event
}

func NewRouter(log *slog.Logger, registry contract.ISessionRegistry, telemetry chan event.Event) *Router {
	return &Router{log: log, registry: registry, telemetry: telemetry}
}

// Route pushes the message to the recipient's connections.
// An offline recipient is not an error, the message stays in history.
func (r *Router) Route(ctx context.Context, message domain.Message) domain.DeliveryReport {
	sinks := r.registry.Sinks(message.To)
	report := domain.DeliveryReport{
		MessageID: message.ID,
		Recipient: message.To,
		Outcomes:  make([]domain.PushOutcome, 0, len(sinks)),
	}

	out := event.NewMsgReceive(message)
	for _, sink := range sinks {
		err := sink.Push(ctx, out)
		if err != nil {
			r.log.Warn("push failed",
				"message_id", message.ID,
				"recipient", message.To,
				"connection_id", sink.ID(),
				"error", err)
		}
		report.Outcomes = append(report.Outcomes, domain.PushOutcome{ConnectionID: sink.ID(), Err: err})
	}
	report.RoutedAt = time.Now().UTC()

	if report.Offline() {
		r.log.Debug("recipient offline", "message_id", message.ID, "recipient", message.To)
	}
	r.emit(event.New(event.MessageRoutedType, event.NewMessageRouted(message.CreatedAt, report)))
	return report
}

func (r *Router) emit(evt event.Event) {
	if r.telemetry == nil {
		return
	}
	select {
	case r.telemetry <- evt:
	default:
		r.log.Debug("telemetry event lost", "type", evt.Type)
	}
}
