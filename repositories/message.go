package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix   = "msg:"
	messageIDPrefix = "msgid:"
)

// MessageRepository is the Badger adapter of the message store gateway.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// StoreMessage persists a message under two keys:
//
//	msg:{conversation}:{timestamp_padded}:{uuid} -> record
//	msgid:{uuid}                                -> the key above
//
// The conversation part is the same for (a, b) and (b, a) and the 19-digit
// padded timestamp keeps a prefix scan in creation order. Storing the same
// message id twice is a no-op.
func (m MessageRepository) StoreMessage(ctx context.Context, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStore, err)
	}
	key := messageKey(message)
	record := encodeMessage(message)
	err := m.db.Update(func(txn *badger.Txn) error {
		idKey := []byte(messageIDPrefix + message.ID.String())
		if _, err := txn.Get(idKey); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(key, record); err != nil {
			return err
		}
		return txn.Set(idKey, key)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStore, err)
	}
	return nil
}

// GetConversation returns the messages exchanged between a and b in both
// directions, oldest first. With a limit (argument first, repository default
// otherwise) only the most recent messages are kept, still oldest first.
func (m MessageRepository) GetConversation(ctx context.Context, a, b domain.UserIdentity, limit *int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStore, err)
	}
	if limit == nil {
		limit = m.limitMessages
	}
	prefix := []byte(conversationPrefix(a, b))

	var records [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = limit != nil
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if options.Reverse {
			// Past the newest possible timestamp, then walk back in time
			seekKey = append(slices.Clone(prefix), []byte("9999999999999999999")...)
		}
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit != nil && len(records) == *limit {
				m.log.Debug("conversation limit reached", "limit", *limit)
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStore, err)
	}

	messages := make([]domain.Message, 0, len(records))
	for _, record := range records {
		message, err := decodeMessage(record)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrStore, err)
		}
		messages = append(messages, message)
	}
	if limit != nil {
		slices.Reverse(messages)
	}
	return messages, nil
}

// GetMessage reads one stored message by id.
func (m MessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrStore, err)
	}
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		_, message, err = readByID(txn, id)
		return err
	})
	if errors.Is(err, errors.ErrMessageNotFound) {
		return domain.Message{}, err
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrStore, err)
	}
	return message, nil
}

// MarkDelivered flips the delivered flag of a stored message.
// Marking an already delivered message succeeds without writing.
func (m MessageRepository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStore, err)
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		key, message, err := readByID(txn, id)
		if err != nil {
			return err
		}
		if message.Delivered {
			return nil
		}
		message.Delivered = true
		return txn.Set(key, encodeMessage(message))
	})
	if errors.Is(err, errors.ErrMessageNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStore, err)
	}
	return nil
}

// readByID follows the msgid: index to the record and returns its key too.
func readByID(txn *badger.Txn, id uuid.UUID) ([]byte, domain.Message, error) {
	idItem, err := txn.Get([]byte(messageIDPrefix + id.String()))
	if err == badger.ErrKeyNotFound {
		return nil, domain.Message{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	key, err := idItem.ValueCopy(nil)
	if err != nil {
		return nil, domain.Message{}, err
	}
	item, err := txn.Get(key)
	if err != nil {
		return nil, domain.Message{}, err
	}
	record, err := item.ValueCopy(nil)
	if err != nil {
		return nil, domain.Message{}, err
	}
	message, err := decodeMessage(record)
	if err != nil {
		return nil, domain.Message{}, err
	}
	return key, message, nil
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s",
		conversationPrefix(message.From, message.To),
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

// conversationPrefix encodes identities so that any character they contain
// is safe next to the ':' separators.
func conversationPrefix(a, b domain.UserIdentity) string {
	first, second := domain.Participants(a, b)
	return fmt.Sprintf("%s%s.%s:", messagePrefix,
		base64.RawURLEncoding.EncodeToString([]byte(first)),
		base64.RawURLEncoding.EncodeToString([]byte(second)),
	)
}
