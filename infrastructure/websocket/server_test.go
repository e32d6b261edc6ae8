package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type harness struct {
	registry  *runtime.Registry
	server    *httptest.Server
	mu        sync.Mutex
	delivered []uuid.UUID
}

func newHarness(t *testing.T, store contract.IMessageStore) *harness {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	h := &harness{registry: runtime.NewRegistry()}
	relay := runtime.NewRelay(log, h.registry, runtime.NewRouter(log, h.registry, nil), store)
	srv := NewServer(log, relay, func(id uuid.UUID) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.delivered = append(h.delivered, id)
	}, Config{
		ConnectionBufferSize: 16,
		WriteTimeout:         time.Second,
		PingInterval:         100 * time.Millisecond,
		PongTimeout:          time.Second,
		MaxFrameSize:         4096,
	})
	h.server = httptest.NewServer(srv)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) dial(t *testing.T) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *harness) deliveredIDs() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uuid.UUID(nil), h.delivered...)
}

func send(t *testing.T, conn *gorilla.Conn, name event.Name, data any) {
	t.Helper()
	raw, err := event.Encode(name, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, raw))
}

func receive(t *testing.T, conn *gorilla.Conn) event.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env event.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestServer_Relays_Between_Two_Users(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	h := newHarness(t, store)
	alice, bob := h.dial(t), h.dial(t)

	// Given both users bound
	send(t, alice, event.AddUserEvent, event.AddUser{UserIdentity: "alice"})
	send(t, bob, event.AddUserEvent, event.AddUser{UserIdentity: "bob"})
	req.Equal(event.AckEvent, receive(t, alice).Event)
	req.Equal(event.AckEvent, receive(t, bob).Event)

	// When alice sends a message carrying its stored id
	stored := domain.NewMessage("alice", "bob", "hi", time.Now())
	id := stored.ID
	store.EXPECT().GetMessage(gomock.Any(), id).Return(stored, nil).Times(1)
	send(t, alice, event.SendMsgEvent, event.SendMsg{From: "alice", To: "bob", Message: "hi", MessageID: id.String()})

	// Then bob receives it
	env := receive(t, bob)
	req.Equal(event.MsgReceiveEvent, env.Event)
	payload, err := event.Decode[event.MsgReceive](env)
	req.NoError(err)
	req.Equal("hi", payload.Message)
	req.Equal(id.String(), payload.ID)

	// And the write is reported as a delivery
	req.Eventually(func() bool {
		ids := h.deliveredIDs()
		return len(ids) == 1 && ids[0] == id
	}, time.Second, 10*time.Millisecond)
}

func TestServer_Reports_Bad_Frames_And_Stays_Open(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, nil)
	conn := h.dial(t)

	req.NoError(conn.WriteMessage(gorilla.TextMessage, []byte("{not json")))
	env := receive(t, conn)
	req.Equal(event.ErrorEvent, env.Event)
	payload, err := event.Decode[event.Error](env)
	req.NoError(err)
	req.Equal("invalid_payload", payload.Code)

	send(t, conn, event.SendMsgEvent, event.SendMsg{From: "a", To: "b", Message: "hi"})
	payload, err = event.Decode[event.Error](receive(t, conn))
	req.NoError(err)
	req.Equal("unbound", payload.Code)

	// Connection still usable
	send(t, conn, event.AddUserEvent, event.AddUser{UserIdentity: "a"})
	req.Equal(event.AckEvent, receive(t, conn).Event)
}

func TestServer_Disconnect_Unbinds(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, nil)
	conn := h.dial(t)
	send(t, conn, event.AddUserEvent, event.AddUser{UserIdentity: "alice"})
	receive(t, conn)
	req.Len(h.registry.ActiveConnections("alice"), 1)

	// When the client goes away
	req.NoError(conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	_ = conn.Close()

	// Then the connection is unbound
	req.Eventually(func() bool {
		return len(h.registry.ActiveConnections("alice")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
