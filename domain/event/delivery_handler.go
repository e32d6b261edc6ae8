package event

import (
	"chat-relay/errors"
	"log/slog"
	"time"
)

// DeliveryHandler counts routed messages, offline recipients and failed pushes,
// and warns when routing lags far behind message creation.
type DeliveryHandler struct {
	log              *slog.Logger
	counter          *Counter
	latencyThreshold time.Duration
}

func NewDeliveryHandler(log *slog.Logger, counter *Counter, latencyThreshold time.Duration) *DeliveryHandler {
	return &DeliveryHandler{log: log, counter: counter, latencyThreshold: latencyThreshold}
}

func (h *DeliveryHandler) Handle(event Event) {
	if event.Type != MessageRoutedType {
		return
	}
	payload, ok := event.Payload.(MessageRouted)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.counter.Increment(MessageRoutedType)
	if payload.Attempted == 0 {
		h.counter.Increment(RecipientOfflineType)
	}
	if failed := payload.Attempted - payload.Pushed; failed > 0 {
		h.counter.Add(PushFailedType, failed)
	}

	lead := payload.RoutedAt.Sub(payload.CreatedAt)
	if h.latencyThreshold > 0 && lead > h.latencyThreshold {
		h.log.Warn("high routing latency",
			"message_id", payload.MessageID,
			"recipient", payload.Recipient,
			"lead_time_ms", lead.Milliseconds())
	}
}
