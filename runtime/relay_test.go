package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/sink"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func envelope(t *testing.T, name event.Name, data any) event.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return event.Envelope{Event: name, Data: raw}
}

func addUser(t *testing.T, user string) event.Envelope {
	return envelope(t, event.AddUserEvent, event.AddUser{UserIdentity: user})
}

func sendMsg(t *testing.T, from, to, body string) event.Envelope {
	return envelope(t, event.SendMsgEvent, event.SendMsg{From: from, To: to, Message: body})
}

func newRelay() (*Relay, *Registry) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	return NewRelay(log, registry, NewRouter(log, registry, nil), nil), registry
}

// next pops the next queued outbound event of a connection.
func next(t *testing.T, s *sink.ConnectionSink) event.Outbound {
	t.Helper()
	select {
	case out := <-s.Events():
		return out
	default:
		require.FailNow(t, "no event queued")
		return event.Outbound{}
	}
}

func TestRelay_AddUser_Binds_And_Acks(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay, registry := newRelay()
	c1 := newSink(t)
	session := relay.Open(c1, "")

	// Given a freshly opened connection
	req.Equal(domain.Connected, session.State())

	// When it sends add-user
	req.NoError(session.Handle(ctx, addUser(t, "u1")))

	// Then it is bound and acknowledged
	req.Equal(domain.Bound, session.State())
	req.Equal(domain.UserIdentity("u1"), session.User())
	req.Equal([]domain.ConnectionID{c1.ID()}, registry.ActiveConnections("u1"))
	req.Equal(event.NewAck(event.AddUserEvent), next(t, c1))

	// And binding again to the same user is accepted
	req.NoError(session.Handle(ctx, addUser(t, "u1")))
	req.Len(registry.ActiveConnections("u1"), 1)
}

func TestRelay_AddUser_Other_Identity_Is_A_Conflict(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay, registry := newRelay()
	c1 := newSink(t)
	session := relay.Open(c1, "")
	req.NoError(session.Handle(ctx, addUser(t, "u1")))
	next(t, c1)

	err := session.Handle(ctx, addUser(t, "u2"))

	req.ErrorIs(err, errors.ErrConflict)
	req.Equal(domain.UserIdentity("u1"), session.User())
	req.Empty(registry.ActiveConnections("u2"))
	out := next(t, c1)
	req.Equal(event.ErrorEvent, out.Event)
	req.Equal("conflict", out.Data.(event.Error).Code)
}

func TestRelay_AddUser_Must_Match_Token_Subject(t *testing.T) {
	req := require.New(t)
	relay, registry := newRelay()
	c1 := newSink(t)
	session := relay.Open(c1, "u1")

	err := session.Handle(context.Background(), addUser(t, "u2"))

	req.ErrorIs(err, errors.ErrUnauthorized)
	req.Equal(domain.Connected, session.State())
	req.Empty(registry.ActiveConnections("u2"))
}

func TestRelay_Send_Before_Bind_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	router := mocks.NewMockIDeliveryRouter(ctrl)
	router.EXPECT().Route(gomock.Any(), gomock.Any()).Times(0)
	relay := NewRelay(logs.GetLoggerFromLevel(slog.LevelDebug), NewRegistry(), router, nil)
	c1 := newSink(t)
	session := relay.Open(c1, "")

	// When send-msg comes before add-user
	err := session.Handle(ctx, sendMsg(t, "u1", "u2", "hi"))

	// Then it is reported and the connection stays usable
	req.ErrorIs(err, errors.ErrUnbound)
	req.Equal("unbound", next(t, c1).Data.(event.Error).Code)
	req.Equal(domain.Connected, session.State())
	req.NoError(session.Handle(ctx, addUser(t, "u1")))
}

func TestRelay_Unknown_Event_And_Bad_Payload(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay, _ := newRelay()
	c1 := newSink(t)
	session := relay.Open(c1, "")

	// Given an unbound connection, anything but add-user is unbound
	req.ErrorIs(session.Handle(ctx, event.Envelope{Event: "typing"}), errors.ErrUnbound)
	req.Equal("unbound", next(t, c1).Data.(event.Error).Code)

	req.ErrorIs(session.Handle(ctx, envelope(t, event.AddUserEvent, map[string]string{})), errors.ErrInvalidPayload)
	req.Equal("invalid_payload", next(t, c1).Data.(event.Error).Code)
	req.Equal(domain.Connected, session.State())

	// Once bound, an unknown event is reported as such
	req.NoError(session.Handle(ctx, addUser(t, "u1")))
	next(t, c1)
	req.ErrorIs(session.Handle(ctx, event.Envelope{Event: "typing"}), errors.ErrUnknownEvent)
	req.Equal("unknown_event", next(t, c1).Data.(event.Error).Code)
	req.Equal(domain.Bound, session.State())
}

func TestRelay_Send_With_Foreign_Sender_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay, _ := newRelay()
	c1 := newSink(t)
	session := relay.Open(c1, "")
	req.NoError(session.Handle(ctx, addUser(t, "u1")))
	next(t, c1)

	err := session.Handle(ctx, sendMsg(t, "someone-else", "u2", "hi"))

	req.ErrorIs(err, errors.ErrIdentityMismatch)
}

// newStoredRelay binds u1 on c1 and u2 on c2, on a relay resolving message
// ids through store.
func newStoredRelay(t *testing.T, store *mocks.MockIMessageStore) (*Session, *sink.ConnectionSink, *sink.ConnectionSink) {
	t.Helper()
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	relay := NewRelay(log, registry, NewRouter(log, registry, nil), store)
	c1, c2 := newSink(t), newSink(t)
	sender := relay.Open(c1, "")
	recipient := relay.Open(c2, "")
	require.NoError(t, sender.Handle(ctx, addUser(t, "u1")))
	require.NoError(t, recipient.Handle(ctx, addUser(t, "u2")))
	next(t, c1)
	next(t, c2)
	return sender, c1, c2
}

func TestRelay_Send_Pushes_The_Stored_Message(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	sender, c1, c2 := newStoredRelay(t, store)

	// Given a message stored an hour ago
	stored := domain.NewMessage("u1", "u2", "hi", time.Now().Add(-time.Hour))
	store.EXPECT().GetMessage(gomock.Any(), stored.ID).Return(stored, nil).Times(1)

	// When the sender notifies it
	err := sender.Handle(context.Background(), envelope(t, event.SendMsgEvent,
		event.SendMsg{From: "u1", To: "u2", Message: "edited on the way", MessageID: stored.ID.String()}))

	// Then the recipient gets the stored record, id, body and creation time
	req.NoError(err)
	out := next(t, c2)
	delivered, ok := out.DeliveredMessageID()
	req.True(ok)
	req.Equal(stored.ID, delivered)
	req.Equal("hi", out.Data.(event.MsgReceive).Message)
	req.Equal(stored.CreatedAt, out.Data.(event.MsgReceive).CreatedAt)
	req.Equal(event.NewAck(event.SendMsgEvent), next(t, c1))
}

func TestRelay_Send_Cannot_Push_Someone_Elses_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	sender, c1, c2 := newStoredRelay(t, store)

	// Given messages u1 did not send to u2
	toOther := domain.NewMessage("u1", "offline", "for someone else", time.Now())
	fromOther := domain.NewMessage("u3", "u2", "not yours", time.Now())
	store.EXPECT().GetMessage(gomock.Any(), toOther.ID).Return(toOther, nil).Times(1)
	store.EXPECT().GetMessage(gomock.Any(), fromOther.ID).Return(fromOther, nil).Times(1)

	for _, stored := range []domain.Message{toOther, fromOther} {
		// When u1 notifies u2 with their ids
		err := sender.Handle(ctx, envelope(t, event.SendMsgEvent,
			event.SendMsg{From: "u1", To: "u2", Message: "hi", MessageID: stored.ID.String()}))

		// Then nothing reaches u2, so no delivery can be confirmed for them
		req.ErrorIs(err, errors.ErrIdentityMismatch)
		req.Equal("identity_mismatch", next(t, c1).Data.(event.Error).Code)
		req.Empty(c2.Events())
	}
}

func TestRelay_Send_Unknown_Or_Unresolvable_Message_ID(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	sender, c1, c2 := newStoredRelay(t, store)

	unknown, failing := uuid.New(), uuid.New()
	store.EXPECT().GetMessage(gomock.Any(), unknown).Return(domain.Message{}, errors.ErrMessageNotFound).Times(1)
	store.EXPECT().GetMessage(gomock.Any(), failing).Return(domain.Message{}, errors.ErrStore).Times(1)

	err := sender.Handle(ctx, envelope(t, event.SendMsgEvent,
		event.SendMsg{From: "u1", To: "u2", Message: "hi", MessageID: unknown.String()}))
	req.ErrorIs(err, errors.ErrInvalidPayload)
	req.Equal("invalid_payload", next(t, c1).Data.(event.Error).Code)

	err = sender.Handle(ctx, envelope(t, event.SendMsgEvent,
		event.SendMsg{From: "u1", To: "u2", Message: "hi", MessageID: failing.String()}))
	req.ErrorIs(err, errors.ErrStore)
	req.Equal("store", next(t, c1).Data.(event.Error).Code)
	req.Empty(c2.Events())

	// Without a store, message ids are refused
	relay, _ := newRelay()
	c3 := newSink(t)
	session := relay.Open(c3, "")
	req.NoError(session.Handle(ctx, addUser(t, "u1")))
	next(t, c3)
	err = session.Handle(ctx, envelope(t, event.SendMsgEvent,
		event.SendMsg{From: "u1", To: "u2", Message: "hi", MessageID: uuid.New().String()}))
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestRelay_Scenario_Fan_Out_Then_Disconnect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay, registry := newRelay()

	// Given A on c1 and B on c2 and c3
	c1, c2, c3 := newSink(t), newSink(t), newSink(t)
	a := relay.Open(c1, "")
	b2 := relay.Open(c2, "")
	b3 := relay.Open(c3, "")
	req.NoError(a.Handle(ctx, addUser(t, "A")))
	req.NoError(b2.Handle(ctx, addUser(t, "B")))
	req.NoError(b3.Handle(ctx, addUser(t, "B")))
	for _, s := range []*sink.ConnectionSink{c1, c2, c3} {
		next(t, s)
	}

	// When A sends hi
	req.NoError(a.Handle(ctx, sendMsg(t, "A", "B", "hi")))

	// Then c2 and c3 both receive it, c1 only gets its ack
	for _, s := range []*sink.ConnectionSink{c2, c3} {
		out := next(t, s)
		req.Equal(event.MsgReceiveEvent, out.Event)
		req.Equal("hi", out.Data.(event.MsgReceive).Message)
	}
	req.Equal(event.AckEvent, next(t, c1).Event)

	// When c3 disconnects and A sends again
	b3.Close()
	req.Equal(domain.Closed, b3.State())
	req.Equal([]domain.ConnectionID{c2.ID()}, registry.ActiveConnections("B"))
	req.NoError(a.Handle(ctx, sendMsg(t, "A", "B", "again")))

	// Then only c2 receives it
	req.Equal("again", next(t, c2).Data.(event.MsgReceive).Message)
	req.Empty(c3.Events())
	req.Equal(2, relay.Count())
}

func TestRelay_Closed_Session_Ignores_Events(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay, registry := newRelay()
	c1 := newSink(t)
	session := relay.Open(c1, "")
	req.NoError(session.Handle(ctx, addUser(t, "u1")))

	// When the server evicts the connection
	req.True(relay.Evict(c1.ID()))
	req.False(relay.Evict(c1.ID()))

	// Then it is unbound, its sink closed, and later events are ignored
	req.Empty(registry.ActiveConnections("u1"))
	req.True(c1.Closed())
	req.ErrorIs(session.Handle(ctx, addUser(t, "u1")), errors.ErrConnectionClosed)
	req.Empty(registry.ActiveConnections("u1"))
	req.Zero(relay.Count())
	session.Close()
}
