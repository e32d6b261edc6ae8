package client

import (
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	gorilla "github.com/gorilla/websocket"
)

// RelayError is an error event answered by the relay.
type RelayError struct {
	Event   event.Name
	Code    string
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s rejected: %s: %s", e.Event, e.Code, e.Message)
}

// Conn is one realtime connection bound to the session identity.
type Conn struct {
	client   *Client
	session  Session
	ws       *gorilla.Conn
	writeMu  sync.Mutex
	sendMu   sync.Mutex
	messages chan event.MsgReceive
	errs     chan error
	replies  chan event.Envelope
	done     chan struct{}
	once     sync.Once
	closing  atomic.Bool
}

// Connect dials the relay and binds the connection to the session user.
// It returns once the relay acknowledged the binding.
func (c *Client) Connect(ctx context.Context, session Session) (*Conn, error) {
	dialer := gorilla.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.socketURL(session.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	conn := &Conn{
		client:   c,
		session:  session,
		ws:       ws,
		messages: make(chan event.MsgReceive, c.cfg.BufferSize),
		errs:     make(chan error, c.cfg.BufferSize),
		replies:  make(chan event.Envelope, 1),
		done:     make(chan struct{}),
	}
	go conn.readLoop()

	handshake, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.request(handshake, event.AddUserEvent, event.AddUser{UserIdentity: session.User.ID}); err != nil {
		conn.Close()
		return nil, err
	}
	c.log.Debug("connected to relay", "user", session.User.ID)
	return conn, nil
}

// Messages delivers msg-receive events addressed to the session user.
func (c *Conn) Messages() <-chan event.MsgReceive {
	return c.messages
}

// Errors delivers failures that belong to no request: unsolicited error
// events and the read error ending the connection.
func (c *Conn) Errors() <-chan error {
	return c.errs
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send stores the message over REST, then asks the relay to notify the
// recipient. The returned id identifies the stored message even when the
// notification fails.
func (c *Conn) Send(ctx context.Context, to, message string) (string, error) {
	id, err := c.client.AddMessage(ctx, c.session, to, message)
	if err != nil {
		return "", err
	}
	err = c.request(ctx, event.SendMsgEvent, event.SendMsg{
		To:        to,
		From:      c.session.User.ID,
		Message:   message,
		MessageID: id,
	})
	return id, err
}

// request writes one event and waits for its ack or error. The relay
// answers in order, so requests are serialised.
func (c *Conn) request(ctx context.Context, name event.Name, data any) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	frame, err := event.Encode(name, data)
	if err != nil {
		return err
	}
	// A reply left over by a request that gave up waiting
	select {
	case stale := <-c.replies:
		c.client.log.Debug("discarding late reply", "event", stale.Event)
	default:
	}
	c.writeMu.Lock()
	err = c.ws.WriteMessage(gorilla.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: connection closed", name)
	case reply := <-c.replies:
		return replyError(reply)
	}
}

func replyError(reply event.Envelope) error {
	if reply.Event == event.AckEvent {
		return nil
	}
	var payload event.Error
	if err := json.Unmarshal(reply.Data, &payload); err != nil {
		return fmt.Errorf("undecodable error event: %w", err)
	}
	return &RelayError{Event: payload.Event, Code: payload.Code, Message: payload.Message}
}

func (c *Conn) readLoop() {
	defer c.shutdown()
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closing.Load() && !gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				c.report(err)
			}
			return
		}
		var env event.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.report(fmt.Errorf("undecodable frame: %w", err))
			continue
		}
		switch env.Event {
		case event.MsgReceiveEvent:
			var msg event.MsgReceive
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				c.report(fmt.Errorf("undecodable msg-receive: %w", err))
				continue
			}
			select {
			case c.messages <- msg:
			default:
				c.client.log.Warn("incoming message dropped, queue is full", "id", msg.ID)
			}
		case event.AckEvent, event.ErrorEvent:
			select {
			case c.replies <- env:
			default:
				// a previous reply was never collected
				c.report(replyError(env))
			}
		default:
			c.client.log.Debug("ignoring unknown event", "event", env.Event)
		}
	}
}

func (c *Conn) report(err error) {
	if err == nil {
		return
	}
	select {
	case c.errs <- err:
	default:
		c.client.log.Warn("connection error dropped", "error", err)
	}
}

func (c *Conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// Close sends a close frame and releases the connection. Safe to call twice.
func (c *Conn) Close() {
	c.closing.Store(true)
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	_ = c.ws.Close()
	<-c.done
}
