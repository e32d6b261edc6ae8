package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format so older readers skip unknown
// fields. Field numbers are part of the on-disk format: never reuse one.
const (
	messageIDField        protowire.Number = 1
	messageFromField      protowire.Number = 2
	messageToField        protowire.Number = 3
	messageBodyField      protowire.Number = 4
	messageCreatedAtField protowire.Number = 5
	messageDeliveredField protowire.Number = 6

	userIDField        protowire.Number = 1
	userUsernameField  protowire.Number = 2
	userEmailField     protowire.Number = 3
	userPasswordField  protowire.Number = 4
	userCreatedAtField protowire.Number = 5
)

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, messageIDField, m.ID.String())
	b = appendString(b, messageFromField, string(m.From))
	b = appendString(b, messageToField, string(m.To))
	b = appendString(b, messageBodyField, m.Body)
	b = protowire.AppendTag(b, messageCreatedAtField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	b = protowire.AppendTag(b, messageDeliveredField, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(m.Delivered))
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	var parseErr error
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch {
		case num == messageIDField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n >= 0 {
				m.ID, parseErr = uuid.Parse(v)
			}
			return n, true
		case num == messageFromField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.From = domain.UserIdentity(v)
			return n, true
		case num == messageToField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.To = domain.UserIdentity(v)
			return n, true
		case num == messageBodyField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Body = v
			return n, true
		case num == messageCreatedAtField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.CreatedAt = time.Unix(0, int64(v)).UTC()
			return n, true
		case num == messageDeliveredField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Delivered = protowire.DecodeBool(v)
			return n, true
		}
		return 0, false
	})
	if err != nil {
		return domain.Message{}, err
	}
	if parseErr != nil {
		return domain.Message{}, fmt.Errorf("message id: %w", parseErr)
	}
	return m, nil
}

func encodeUser(u domain.User) []byte {
	var b []byte
	b = appendString(b, userIDField, string(u.ID))
	b = appendString(b, userUsernameField, u.Username)
	b = appendString(b, userEmailField, u.Email)
	b = appendString(b, userPasswordField, u.PasswordHash)
	b = protowire.AppendTag(b, userCreatedAtField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.CreatedAt.Unix()))
	return b
}

func decodeUser(b []byte) (domain.User, error) {
	var u domain.User
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if typ == protowire.VarintType && num == userCreatedAtField {
			v, n := protowire.ConsumeVarint(b)
			u.CreatedAt = time.Unix(int64(v), 0).UTC()
			return n, true
		}
		if typ != protowire.BytesType {
			return 0, false
		}
		v, n := protowire.ConsumeString(b)
		switch num {
		case userIDField:
			u.ID = domain.UserIdentity(v)
		case userUsernameField:
			u.Username = v
		case userEmailField:
			u.Email = v
		case userPasswordField:
			u.PasswordHash = v
		default:
			return 0, false
		}
		return n, true
	})
	return u, err
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// consumeFields walks a record. field returns the consumed length for the
// fields it knows and false for the others, which are skipped.
func consumeFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, bool)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, known := field(num, typ, b)
		if !known {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
