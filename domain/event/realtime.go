package event

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Name is the name of a realtime event, as written in the envelope.
type Name string

const (
	AddUserEvent    Name = "add-user"
	SendMsgEvent    Name = "send-msg"
	MsgReceiveEvent Name = "msg-receive"
	AckEvent        Name = "ack"
	ErrorEvent      Name = "error"
)

// Envelope is the frame exchanged on the realtime channel in both directions.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AddUser struct {
	UserIdentity string `json:"userIdentity" validate:"required,max=128"`
}

type SendMsg struct {
	To        string `json:"to" validate:"required,max=128"`
	From      string `json:"from" validate:"required,max=128"`
	Message   string `json:"message" validate:"required"`
	MessageID string `json:"messageId,omitempty" validate:"omitempty,uuid"`
}

// MsgReceive is pushed to every bound connection of the recipient.
type MsgReceive struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type Ack struct {
	Event Name `json:"event"`
}

type Error struct {
	Event   Name   `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode unmarshals and validates the payload of an envelope.
func Decode[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, fmt.Errorf("%w: %s has no data", errors.ErrInvalidPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", errors.ErrInvalidPayload, env.Event, err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", errors.ErrInvalidPayload, env.Event, err)
	}
	return payload, nil
}

// Encode builds an envelope ready to be written on the wire.
func Encode(name Name, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: name, Data: raw})
}

// Outbound is an event queued toward one connection.
type Outbound struct {
	Event Name
	Data  any
}

func (o Outbound) Encode() ([]byte, error) {
	return Encode(o.Event, o.Data)
}

// DeliveredMessageID returns the message carried by a msg-receive event,
// used to confirm the delivery once the frame has been written.
func (o Outbound) DeliveredMessageID() (uuid.UUID, bool) {
	if o.Event != MsgReceiveEvent {
		return uuid.Nil, false
	}
	payload, ok := o.Data.(MsgReceive)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(payload.ID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func NewMsgReceive(m domain.Message) Outbound {
	return Outbound{Event: MsgReceiveEvent, Data: MsgReceive{
		ID:        m.ID.String(),
		From:      string(m.From),
		To:        string(m.To),
		Message:   m.Body,
		CreatedAt: m.CreatedAt,
	}}
}

func NewAck(name Name) Outbound {
	return Outbound{Event: AckEvent, Data: Ack{Event: name}}
}

func NewError(name Name, err error) Outbound {
	return Outbound{Event: ErrorEvent, Data: Error{
		Event:   name,
		Code:    errors.Code(err),
		Message: err.Error(),
	}}
}
