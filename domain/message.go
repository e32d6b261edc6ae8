// Package domain contains core concepts of the relay.
// This file defines Message and the rules attached to a conversation.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a direct message between two identities.
// Delivered is only ever switched from false to true.
type Message struct {
	ID        uuid.UUID
	From      UserIdentity
	To        UserIdentity
	Body      string
	CreatedAt time.Time
	Delivered bool
}

func NewMessage(from, to UserIdentity, body string, at time.Time) Message {
	return Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Body:      body,
		CreatedAt: at.UTC(),
	}
}

// FromSelf tells whether the message was written by the given user.
func (m Message) FromSelf(user UserIdentity) bool {
	return m.From == user
}

// Between reports whether the message belongs to the conversation of a and b,
// whatever the direction.
func (m Message) Between(a, b UserIdentity) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// Participants returns both identities of a conversation in a stable order,
// so (a, b) and (b, a) address the same history.
func Participants(a, b UserIdentity) (UserIdentity, UserIdentity) {
	if b < a {
		return b, a
	}
	return a, b
}
