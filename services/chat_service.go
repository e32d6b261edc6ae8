package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// IChatService is the durable side of messaging used by the REST layer.
type IChatService interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	GetHistory(ctx context.Context, cmd domain.GetHistoryCommand) ([]domain.Message, error)
}

type ChatService struct {
	store            contract.IMessageStore
	log              *slog.Logger
	maxContentLength int
}

func NewChatService(store contract.IMessageStore, log *slog.Logger, maxContentLength int) *ChatService {
	return &ChatService{store: store, log: log, maxContentLength: maxContentLength}
}

// SendMessage persists a message. It does not notify the recipient:
// live delivery goes through the realtime channel.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := s.validate(cmd); err != nil {
		return domain.Message{}, err
	}
	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	message := domain.NewMessage(cmd.From, cmd.To, cmd.Body, createdAt)
	if err := s.store.StoreMessage(ctx, message); err != nil {
		s.log.Error("message not stored", "from", cmd.From, "to", cmd.To, "error", err)
		return domain.Message{}, err
	}
	s.log.Debug("message stored", "message_id", message.ID, "from", message.From, "to", message.To)
	return message, nil
}

func (s *ChatService) GetHistory(ctx context.Context, cmd domain.GetHistoryCommand) ([]domain.Message, error) {
	if cmd.From == "" || cmd.To == "" {
		return nil, fmt.Errorf("%w: both participants are required", errors.ErrInvalidPayload)
	}
	if cmd.Limit != nil && *cmd.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", errors.ErrInvalidPayload)
	}
	return s.store.GetConversation(ctx, cmd.From, cmd.To, cmd.Limit)
}

func (s *ChatService) validate(cmd domain.SendMessageCommand) error {
	if cmd.From == "" || cmd.To == "" {
		return fmt.Errorf("%w: both participants are required", errors.ErrInvalidPayload)
	}
	if strings.TrimSpace(cmd.Body) == "" {
		return fmt.Errorf("%w: empty message", errors.ErrInvalidPayload)
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(cmd.Body) > s.maxContentLength {
		return fmt.Errorf("%w: message longer than %d characters", errors.ErrInvalidPayload, s.maxContentLength)
	}
	return nil
}
