package event

import (
	"chat-relay/errors"
	"log/slog"
)

// WorkerRestartedAfterPanicHandler handles events when a worker panics and is restarted.
// It is triggered by the Supervisor when a worker recovers from a panic.
type WorkerRestartedAfterPanicHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{log: log, counter: counter}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.counter.Increment(RestartedAfterPanicType)
	h.log.Warn("worker restarted after panic",
		"worker", payload.WorkerName,
		"total", h.counter.Get(RestartedAfterPanicType))
}
