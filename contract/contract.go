//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// ConnectionSink is the outbound side of one live connection.
// Push never waits for the client: it either queues the event or fails.
type ConnectionSink interface {
	ID() domain.ConnectionID
	Push(ctx context.Context, out event.Outbound) error
	Close()
}

type ISessionRegistry interface {
	Bind(connID domain.ConnectionID, user domain.UserIdentity, sink ConnectionSink) error
	Unbind(connID domain.ConnectionID)
	ActiveConnections(user domain.UserIdentity) []domain.ConnectionID
	Sinks(user domain.UserIdentity) []ConnectionSink
}

type IDeliveryRouter interface {
	Route(ctx context.Context, message domain.Message) domain.DeliveryReport
}

// IMessageStore is the gateway to durable conversation history.
// Writes are append-only and reads are idempotent.
type IMessageStore interface {
	StoreMessage(ctx context.Context, message domain.Message) error
	GetConversation(ctx context.Context, a, b domain.UserIdentity, limit *int) ([]domain.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
}

type IUserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	ListUsers(ctx context.Context, exclude domain.UserIdentity) ([]domain.User, error)
}
