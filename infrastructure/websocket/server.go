// Package websocket carries the realtime protocol over gorilla websockets.
// Each connection gets one reader, driving the relay session, and one writer
// draining the connection sink.
package websocket

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/runtime"
	"chat-relay/sink"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
)

type Config struct {
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
	MaxFrameSize         int64
	// AllowedOrigins restricts browser origins, any origin is accepted when empty.
	// Clients sending no Origin header are not browsers and always accepted.
	AllowedOrigins []string
}

type Server struct {
	log       *slog.Logger
	relay     *runtime.Relay
	delivered func(uuid.UUID)
	cfg       Config
	upgrader  gorilla.Upgrader
}

// NewServer builds the upgrade handler. delivered is called with the id of
// every msg-receive frame successfully written to a client.
func NewServer(log *slog.Logger, relay *runtime.Relay, delivered func(uuid.UUID), cfg Config) *Server {
	s := &Server{log: log, relay: relay, delivered: delivered, cfg: cfg}
	s.upgrader = gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connSink := sink.NewConnectionSink(domain.NewConnectionID(), s.log, s.cfg.ConnectionBufferSize)
	session := s.relay.Open(connSink, auth.SubjectFromContext(r.Context()))
	log := s.log.With("connection_id", session.ID(), "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, connSink, log)
	}()

	s.readLoop(ctx, conn, session, log)

	// Unbind first, the writer then sees the sink closed and says goodbye
	session.Close()
	<-writerDone
}

func (s *Server) readLoop(ctx context.Context, conn *gorilla.Conn, session *runtime.Session, log *slog.Logger) {
	if s.cfg.MaxFrameSize > 0 {
		conn.SetReadLimit(s.cfg.MaxFrameSize)
	}
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				log.Warn("connection lost", "error", err)
			} else {
				log.Debug("connection ended", "error", err)
			}
			return
		}
		_ = extend()

		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			session.Report(ctx, "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
			continue
		}
		// Rejections are answered to the client by the session itself
		_ = session.Handle(ctx, env)
	}
}

func (s *Server) writeLoop(conn *gorilla.Conn, connSink *sink.ConnectionSink, log *slog.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connSink.Done():
			_ = conn.WriteControl(gorilla.CloseMessage,
				gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""),
				time.Now().Add(s.cfg.WriteTimeout))
			return
		case out := <-connSink.Events():
			data, err := out.Encode()
			if err != nil {
				log.Error("unable to encode outbound event", "event", out.Event, "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(gorilla.TextMessage, data); err != nil {
				log.Warn("write failed, closing connection", "event", out.Event, "error", err)
				// Unblocks the reader, which closes the session
				_ = conn.Close()
				return
			}
			if id, ok := out.DeliveredMessageID(); ok && s.delivered != nil {
				s.delivered(id)
			}
		case <-ticker.C:
			if err := conn.WriteControl(gorilla.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				log.Warn("ping failed, closing connection", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(s.cfg.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}
