package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// DeliveryTrackerWorker sets the delivered flag of messages whose
// msg-receive frame was written to a recipient connection.
// It keeps store latency away from the routing path.
type DeliveryTrackerWorker struct {
	log   *slog.Logger
	store contract.IMessageStore
	acks  <-chan uuid.UUID
}

func NewDeliveryTrackerWorker(log *slog.Logger, store contract.IMessageStore, acks <-chan uuid.UUID) *DeliveryTrackerWorker {
	return &DeliveryTrackerWorker{log: log, store: store, acks: acks}
}

func (w *DeliveryTrackerWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-w.acks:
			if !ok {
				return nil
			}
			w.markDelivered(ctx, id)
		}
	}
}

func (w *DeliveryTrackerWorker) markDelivered(ctx context.Context, id uuid.UUID) {
	err := w.store.MarkDelivered(ctx, id)
	switch {
	case err == nil:
		w.log.Debug("message delivered", "message_id", id)
	case errors.Is(err, errors.ErrMessageNotFound):
		// Realtime only message, never sent through the REST path
		w.log.Debug("delivered message is not stored", "message_id", id)
	default:
		w.log.Error("unable to mark message delivered", "message_id", id, "error", err)
	}
}
