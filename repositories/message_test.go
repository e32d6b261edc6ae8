package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t testing.TB) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func message(from, to domain.UserIdentity, body string, at time.Time) domain.Message {
	return domain.Message{ID: uuid.New(), From: from, To: to, Body: body, CreatedAt: at}
}

func Test_Conversation_Is_Symmetric_And_Sorted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	// Given messages in both directions, stored out of order, plus another conversation
	stored := []domain.Message{
		message("bob", "alice", "second", at.Add(1*time.Minute)),
		message("alice", "bob", "first", at),
		message("alice", "bob", "third", at.Add(2*time.Minute)),
		message("alice", "clara", "elsewhere", at.Add(30*time.Second)),
	}
	for _, m := range stored {
		req.NoError(repository.StoreMessage(ctx, m))
	}

	// When fetching from both sides
	fromAlice, err := repository.GetConversation(ctx, "alice", "bob", nil)
	req.NoError(err)
	fromBob, err := repository.GetConversation(ctx, "bob", "alice", nil)
	req.NoError(err)

	// Then the same ascending sequence comes back
	bodies := lo.Map(fromAlice, func(m domain.Message, _ int) string { return m.Body })
	req.Equal([]string{"first", "second", "third"}, bodies)
	req.Equal(fromAlice, fromBob)
	req.Equal(stored[1], fromAlice[0])
}

func Test_Conversation_Fetch_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	req.NoError(repository.StoreMessage(ctx, message("alice", "bob", "hi", time.Now().UTC())))

	first, err := repository.GetConversation(ctx, "alice", "bob", nil)
	req.NoError(err)
	second, err := repository.GetConversation(ctx, "alice", "bob", nil)
	req.NoError(err)

	req.Len(first, 1)
	req.Equal(first, second)
}

func Test_Store_Same_Message_Twice_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	m := message("alice", "bob", "hi", time.Now().UTC())

	req.NoError(repository.StoreMessage(ctx, m))
	req.NoError(repository.StoreMessage(ctx, m))

	messages, err := repository.GetConversation(ctx, "alice", "bob", nil)
	req.NoError(err)
	req.Len(messages, 1)
}

func Test_Conversation_Limit_Keeps_Most_Recent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	limit := 4
	repository := NewMessageRepository(openDB(t), slog.Default(), &limit)
	now := time.Now().UTC()

	for i := 1; i <= 10; i++ {
		req.NoError(repository.StoreMessage(ctx,
			message("alice", "bob", fmt.Sprintf("Message %d", i), now.Add(time.Duration(i)*time.Minute))))
	}

	// Repository default
	messages, err := repository.GetConversation(ctx, "alice", "bob", nil)
	req.NoError(err)
	req.Len(messages, 4)
	req.Equal("Message 7", messages[0].Body)
	req.Equal("Message 10", messages[3].Body)

	// Explicit limit wins
	messages, err = repository.GetConversation(ctx, "bob", "alice", lo.ToPtr(2))
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("Message 9", messages[0].Body)
}

func Test_Identities_With_Separators_Do_Not_Collide(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	req.NoError(repository.StoreMessage(ctx, message("a:b", "c", "one", at)))
	req.NoError(repository.StoreMessage(ctx, message("a", "b:c", "two", at)))

	messages, err := repository.GetConversation(ctx, "a:b", "c", nil)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("one", messages[0].Body)
}

func Test_MarkDelivered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	m := message("alice", "bob", "hi", time.Now().UTC())
	req.NoError(repository.StoreMessage(ctx, m))

	// When the message is marked twice
	req.NoError(repository.MarkDelivered(ctx, m.ID))
	req.NoError(repository.MarkDelivered(ctx, m.ID))

	// Then the flag is persisted
	messages, err := repository.GetConversation(ctx, "bob", "alice", nil)
	req.NoError(err)
	req.Len(messages, 1)
	req.True(messages[0].Delivered)

	// And unknown ids are reported as such, not as store failures
	err = repository.MarkDelivered(ctx, uuid.New())
	req.ErrorIs(err, errors.ErrMessageNotFound)
	req.NotErrorIs(err, errors.ErrStore)
}

func Test_GetMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	m := message("alice", "bob", "hi", time.Now().UTC())
	req.NoError(repository.StoreMessage(ctx, m))

	// When reading it back by id
	stored, err := repository.GetMessage(ctx, m.ID)

	// Then the stored record comes back as written
	req.NoError(err)
	req.Equal(m, stored)

	// And the delivered flag is visible once set
	req.NoError(repository.MarkDelivered(ctx, m.ID))
	stored, err = repository.GetMessage(ctx, m.ID)
	req.NoError(err)
	req.True(stored.Delivered)

	_, err = repository.GetMessage(ctx, uuid.New())
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_Canceled_Context_Is_A_Store_Error(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repository.StoreMessage(ctx, message("alice", "bob", "hi", time.Now()))
	req.ErrorIs(err, errors.ErrStore)
	req.ErrorIs(err, context.Canceled)
}
