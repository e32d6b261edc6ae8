package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Relay owns the live connections of the process and runs the realtime
// protocol for each of them.
type Relay struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry contract.ISessionRegistry
	router   contract.IDeliveryRouter
	store    contract.IMessageStore
	sessions map[domain.ConnectionID]*Session
}

// NewRelay builds the realtime side. store resolves the messageId carried by
// send-msg, a relay without store rejects such events.
func NewRelay(log *slog.Logger, registry contract.ISessionRegistry, router contract.IDeliveryRouter,
	store contract.IMessageStore) *Relay {
	return &Relay{
		log:      log,
		registry: registry,
		router:   router,
		store:    store,
		sessions: make(map[domain.ConnectionID]*Session),
	}
}

// Open registers a freshly accepted connection in the Connected state.
// subject is the identity proven by a token at upgrade time, empty if none.
func (r *Relay) Open(sink contract.ConnectionSink, subject domain.UserIdentity) *Session {
	session := &Session{
		id:        sink.ID(),
		log:       r.log.With("connection_id", sink.ID()),
		relay:     r,
		sink:      sink,
		subject:   subject,
		state:     domain.Connected,
		createdAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.sessions[session.id] = session
	r.mu.Unlock()
	session.log.Debug("connection opened")
	return session
}

// Evict closes a connection from the server side.
func (r *Relay) Evict(connID domain.ConnectionID) bool {
	r.mu.Lock()
	session, ok := r.sessions[connID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	session.Close()
	return true
}

// CloseAll closes every live connection, used on shutdown.
func (r *Relay) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (r *Relay) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Relay) forget(connID domain.ConnectionID) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

// Session is the protocol state of one connection.
// Events of a connection are handled one at a time, in arrival order.
type Session struct {
	mu        sync.Mutex
	id        domain.ConnectionID
	log       *slog.Logger
	relay     *Relay
	sink      contract.ConnectionSink
	subject   domain.UserIdentity
	user      domain.UserIdentity
	state     domain.ConnectionState
	createdAt time.Time
}

func (s *Session) ID() domain.ConnectionID { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User is empty until the connection is bound.
func (s *Session) User() domain.UserIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Handle applies one client event. A rejected event is answered with an
// error event and returned, the connection stays open. Events reaching a
// closed session are ignored.
func (s *Session) Handle(ctx context.Context, env event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.Closed {
		return errors.ErrConnectionClosed
	}

	var err error
	switch {
	case env.Event == event.AddUserEvent:
		err = s.addUser(env)
	case s.state != domain.Bound:
		err = fmt.Errorf("%w: %q before %s", errors.ErrUnbound, env.Event, event.AddUserEvent)
	case env.Event == event.SendMsgEvent:
		err = s.sendMsg(ctx, env)
	default:
		err = fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Event)
	}
	if err != nil {
		s.log.Info("event rejected", "event", env.Event, "state", s.state, "error", err)
		s.reply(ctx, event.NewError(env.Event, err))
		return err
	}
	s.reply(ctx, event.NewAck(env.Event))
	return nil
}

// Report answers a frame that could not even be decoded.
func (s *Session) Report(ctx context.Context, name event.Name, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.Closed {
		return
	}
	s.reply(ctx, event.NewError(name, err))
}

func (s *Session) addUser(env event.Envelope) error {
	payload, err := event.Decode[event.AddUser](env)
	if err != nil {
		return err
	}
	user := domain.UserIdentity(payload.UserIdentity)
	if s.subject != "" && s.subject != user {
		return fmt.Errorf("%w: token was issued to another identity", errors.ErrUnauthorized)
	}
	if err := s.relay.registry.Bind(s.id, user, s.sink); err != nil {
		return err
	}
	if s.state != domain.Bound {
		s.log.Info("connection bound", "user", user)
	}
	s.user = user
	s.state = domain.Bound
	return nil
}

// sendMsg must be called on a bound session.
func (s *Session) sendMsg(ctx context.Context, env event.Envelope) error {
	payload, err := event.Decode[event.SendMsg](env)
	if err != nil {
		return err
	}
	if domain.UserIdentity(payload.From) != s.user {
		return fmt.Errorf("%w: from %q on a connection bound to %q", errors.ErrIdentityMismatch, payload.From, s.user)
	}

	message := domain.NewMessage(s.user, domain.UserIdentity(payload.To), payload.Message, time.Now())
	if payload.MessageID != "" {
		if message, err = s.storedMessage(ctx, payload); err != nil {
			return err
		}
	}
	report := s.relay.router.Route(ctx, message)
	s.log.Debug("message routed",
		"message_id", message.ID,
		"to", message.To,
		"attempted", report.Attempted(),
		"pushed", report.Pushed())
	return nil
}

// storedMessage resolves the record a send-msg refers to. Only the sender of
// a stored message can push it, and only to its recipient: the delivered
// flag of that record is set from this push.
func (s *Session) storedMessage(ctx context.Context, payload event.SendMsg) (domain.Message, error) {
	if s.relay.store == nil {
		return domain.Message{}, fmt.Errorf("%w: messageId is not accepted here", errors.ErrInvalidPayload)
	}
	id := uuid.MustParse(payload.MessageID)
	stored, err := s.relay.store.GetMessage(ctx, id)
	if errors.Is(err, errors.ErrMessageNotFound) {
		return domain.Message{}, fmt.Errorf("%w: unknown messageId %s", errors.ErrInvalidPayload, id)
	}
	if err != nil {
		return domain.Message{}, err
	}
	if stored.From != s.user || stored.To != domain.UserIdentity(payload.To) {
		return domain.Message{}, fmt.Errorf("%w: message %s is not from %q to %q",
			errors.ErrIdentityMismatch, id, s.user, payload.To)
	}
	return stored, nil
}

// reply must be called with the session lock held.
func (s *Session) reply(ctx context.Context, out event.Outbound) {
	if err := s.sink.Push(ctx, out); err != nil {
		s.log.Warn("reply dropped", "event", out.Event, "error", err)
	}
}

// Close unbinds the connection before closing its sink, so that no routing
// can reach it afterwards. It is safe to call from any state, more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == domain.Closed {
		s.mu.Unlock()
		return
	}
	s.relay.registry.Unbind(s.id)
	s.sink.Close()
	s.state = domain.Closed
	s.mu.Unlock()

	s.relay.forget(s.id)
	s.log.Debug("connection closed", "user", s.user)
}
