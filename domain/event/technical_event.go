package event

import (
	"chat-relay/domain"
	"time"

	"github.com/google/uuid"
)

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	ProcessStatsType        Type = "PROCESS_STATS"
	MessageRoutedType       Type = "MESSAGE_ROUTED"
	PushFailedType          Type = "PUSH_FAILED"
	RecipientOfflineType    Type = "RECIPIENT_OFFLINE"
)

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type ProcessStats struct {
	PID        int32
	Threads    int32
	Goroutines int
	Cpu        float64
	Ram        uint64
}

type MessageRouted struct {
	MessageID uuid.UUID
	Recipient domain.UserIdentity
	CreatedAt time.Time
	RoutedAt  time.Time
	Attempted int
	Pushed    int
}

func NewMessageRouted(createdAt time.Time, report domain.DeliveryReport) MessageRouted {
	return MessageRouted{
		MessageID: report.MessageID,
		Recipient: report.Recipient,
		CreatedAt: createdAt,
		RoutedAt:  report.RoutedAt,
		Attempted: report.Attempted(),
		Pushed:    report.Pushed(),
	}
}
