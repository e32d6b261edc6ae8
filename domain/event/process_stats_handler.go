package event

import (
	"chat-relay/errors"
	"log/slog"
)

type ProcessStatsHandler struct {
	log *slog.Logger
}

func NewProcessStatsHandler(log *slog.Logger) *ProcessStatsHandler {
	return &ProcessStatsHandler{log: log}
}

func (h ProcessStatsHandler) Handle(event Event) {
	if event.Type != ProcessStatsType {
		return
	}
	payload, ok := event.Payload.(ProcessStats)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.log.Debug("relay process",
		"pid", payload.PID,
		"threads", payload.Threads,
		"goroutines", payload.Goroutines,
		"cpu_percent", payload.Cpu,
		"rss_bytes", payload.Ram)
}
