package test

import (
	"chat-relay/client"
	"chat-relay/domain/api"
	"chat-relay/domain/event"
	"chat-relay/internal/relaytest"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	gorilla "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
	Server *relaytest.Server
	Client *client.Client
	// test is the top-level test, connections outlive the steps
	test *testing.T
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// SetupTest gives every test a fresh relay and store
func (s *BaseRelaySuite) SetupTest() {
	s.test = s.T()
	s.Server = relaytest.Start(s.T())
	var err error
	s.Client, err = client.New(logs.GetLoggerFromLevel(slog.LevelDebug), client.Config{
		BaseURL:          s.Server.URL,
		HandshakeTimeout: s.Config.Wait,
	})
	s.Require().NoError(err)
}

// Step prints a colorized header and runs fn as a subtest
func (s *BaseRelaySuite) Step(name string, fn func(ctx context.Context)) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.Run(name, func() {
		s.T().Log(header)
		ctx, cancel := context.WithTimeout(context.Background(), 10*s.Config.Wait)
		defer cancel()
		fn(ctx)
	})
}

// Connect binds a new connection to identity, without authentication.
func (s *BaseRelaySuite) Connect(ctx context.Context, identity string) *client.Conn {
	conn, err := s.Client.Connect(ctx, s.Session(identity))
	s.Require().NoError(err, "connect "+identity)
	s.test.Cleanup(conn.Close)
	return conn
}

func (s *BaseRelaySuite) Session(identity string) client.Session {
	return client.Session{User: api.User{ID: identity}}
}

// Receive waits for the next message on conn.
func (s *BaseRelaySuite) Receive(conn *client.Conn) event.MsgReceive {
	select {
	case msg := <-conn.Messages():
		s.dump(msg)
		return msg
	case err := <-conn.Errors():
		s.FailNow("unexpected connection error", err.Error())
	case <-time.After(s.Config.Wait):
		s.FailNow("no message received")
	}
	return event.MsgReceive{}
}

// Silent asserts that conn receives nothing for a short while.
func (s *BaseRelaySuite) Silent(conn *client.Conn) {
	select {
	case msg := <-conn.Messages():
		s.dump(msg)
		s.Failf("unexpected message", "from %s: %s", msg.From, msg.Message)
	case <-time.After(s.Config.Wait / 10):
	}
}

func (s *BaseRelaySuite) dump(v any) {
	if !s.Config.DebugJSON {
		return
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		s.T().Log("RECEIVED:\n" + string(raw))
	}
}

// Raw dials the relay without the SDK, to send frames the SDK never sends.
func (s *BaseRelaySuite) Raw() *gorilla.Conn {
	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/socket"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.test.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *BaseRelaySuite) Write(conn *gorilla.Conn, name event.Name, data any) {
	frame, err := event.Encode(name, data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(gorilla.TextMessage, frame))
}

func (s *BaseRelaySuite) Read(conn *gorilla.Conn) event.Envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(s.Config.Wait)))
	_, frame, err := conn.ReadMessage()
	s.Require().NoError(err)
	var env event.Envelope
	s.Require().NoError(json.Unmarshal(frame, &env))
	s.dump(env)
	return env
}
