package workers

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

// TelemetryWorker hands every telemetry event to each handler in turn.
// Handlers pick the types they know and ignore the others.
type TelemetryWorker struct {
	log       *slog.Logger
	telemetry <-chan event.Event
	handlers  []event.Handler
}

func NewTelemetryWorker(log *slog.Logger, telemetry <-chan event.Event, handlers ...event.Handler) *TelemetryWorker {
	return &TelemetryWorker{log: log, telemetry: telemetry, handlers: handlers}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case evt, ok := <-w.telemetry:
			if !ok {
				return nil
			}
			w.handle(evt)
		}
	}
}

func (w *TelemetryWorker) handle(evt event.Event) {
	for _, h := range w.handlers {
		h.Handle(evt)
	}
}
