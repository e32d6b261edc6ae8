package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_SendMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := NewChatService(store, logs.GetLoggerFromLevel(slog.LevelDebug), 10)
	ctx := context.Background()

	t.Run("should store a valid message", func(t *testing.T) {
		req := require.New(t)
		at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
		var stored domain.Message
		store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, m domain.Message) error {
				stored = m
				return nil
			}).Times(1)

		message, err := svc.SendMessage(ctx, domain.SendMessageCommand{From: "u1", To: "u2", Body: "hi", CreatedAt: at})

		req.NoError(err)
		req.Equal(stored, message)
		req.Equal(at, message.CreatedAt)
		req.False(message.Delivered)
	})

	t.Run("should surface store failures", func(t *testing.T) {
		req := require.New(t)
		store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).Return(errors.ErrStore).Times(1)

		_, err := svc.SendMessage(ctx, domain.SendMessageCommand{From: "u1", To: "u2", Body: "hi"})

		req.ErrorIs(err, errors.ErrStore)
	})

	t.Run("should reject invalid messages without touching the store", func(t *testing.T) {
		store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).Times(0)
		for _, cmd := range []domain.SendMessageCommand{
			{From: "", To: "u2", Body: "hi"},
			{From: "u1", To: "u2", Body: "   "},
			{From: "u1", To: "u2", Body: strings.Repeat("é", 11)},
		} {
			_, err := svc.SendMessage(ctx, cmd)
			require.ErrorIs(t, err, errors.ErrInvalidPayload)
		}
	})
}

func TestChatService_GetHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := NewChatService(store, logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	ctx := context.Background()

	t.Run("should forward to the store", func(t *testing.T) {
		req := require.New(t)
		expected := []domain.Message{domain.NewMessage("u1", "u2", "hi", time.Now())}
		store.EXPECT().GetConversation(gomock.Any(), domain.UserIdentity("u2"), domain.UserIdentity("u1"), lo.ToPtr(5)).
			Return(expected, nil).Times(1)

		messages, err := svc.GetHistory(ctx, domain.GetHistoryCommand{From: "u2", To: "u1", Limit: lo.ToPtr(5)})

		req.NoError(err)
		req.Equal(expected, messages)
	})

	t.Run("should reject a non positive limit", func(t *testing.T) {
		_, err := svc.GetHistory(ctx, domain.GetHistoryCommand{From: "u2", To: "u1", Limit: lo.ToPtr(0)})
		require.ErrorIs(t, err, errors.ErrInvalidPayload)
	})
}
