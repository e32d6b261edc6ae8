package event

import (
	"chat-relay/errors"
	"log/slog"
)

// ChannelCapacityHandler warns when an internal channel is close to full.
// A full ack channel means delivered flags are lost, a full telemetry channel
// only means samples are lost.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{log: log, lowCapacityThreshold: lowCapacityThreshold}
}

func (h ChannelCapacityHandler) Handle(event Event) {
	if event.Type != ChannelCapacityType {
		return
	}
	payload, ok := event.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.log.Debug("channel usage", "channel", payload.ChannelName,
		"length", payload.Length, "capacity", payload.Capacity)
	if payload.Capacity <= 0 {
		return
	}
	capacityLeft := payload.Capacity - payload.Length
	if capacityLeft <= h.lowCapacityThreshold {
		h.log.Warn("channel close to saturation",
			"channel", payload.ChannelName, "capacity_left", capacityLeft)
	}
}
