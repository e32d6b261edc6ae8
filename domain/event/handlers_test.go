package event

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestDeliveryHandler_Counts(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	counter := NewCounter()
	handler := NewDeliveryHandler(log, counter, time.Second)
	now := time.Now().UTC()

	// Given a routed message reaching 1 of 2 devices, then an offline recipient
	handler.Handle(New(MessageRoutedType, MessageRouted{
		MessageID: uuid.New(), Recipient: "bob", CreatedAt: now, RoutedAt: now,
		Attempted: 2, Pushed: 1,
	}))
	handler.Handle(New(MessageRoutedType, MessageRouted{
		MessageID: uuid.New(), Recipient: "clara", CreatedAt: now, RoutedAt: now,
	}))

	// Then
	req.Equal(2, counter.Get(MessageRoutedType))
	req.Equal(1, counter.Get(RecipientOfflineType))
	req.Equal(1, counter.Get(PushFailedType))
}

func TestDeliveryHandler_Ignores_Other_Types_And_Bad_Payloads(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewDeliveryHandler(slog.Default(), counter, 0)

	handler.Handle(New(ChannelCapacityType, ChannelCapacity{}))
	handler.Handle(New(MessageRoutedType, "not a payload"))

	req.Zero(counter.Get(MessageRoutedType))
}

func TestWorkerRestartedAfterPanicHandler_Counts(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewWorkerRestartedAfterPanicHandler(slog.Default(), counter)

	handler.Handle(New(RestartedAfterPanicType, WorkerRestartedAfterPanic{WorkerName: "DeliveryTrackerWorker"}))
	handler.Handle(New(RestartedAfterPanicType, WorkerRestartedAfterPanic{WorkerName: "DeliveryTrackerWorker"}))

	req.Equal(2, counter.Get(RestartedAfterPanicType))
}
