// Package relaytest starts a complete relay in-process for tests: Badger on a
// temporary directory, supervised workers, REST and websocket on an httptest server.
package relaytest

import (
	"chat-relay/auth"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/websocket"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const Secret = "relaytest-secret-long-enough-for-hs256"

type Server struct {
	URL          string
	Orchestrator *runtime.Orchestrator
	Messages     repositories.MessageRepository
	Users        repositories.UserRepository
	Counter      *event.Counter
	Issuer       auth.TokenIssuer
}

type options struct {
	requireAuth   bool
	limitMessages *int
}

type Option func(*options)

// WithRequiredAuth rejects websocket upgrades and message or contact calls
// without a valid token.
func WithRequiredAuth() Option {
	return func(o *options) { o.requireAuth = true }
}

func WithLimitMessages(limit int) Option {
	return func(o *options) { o.limitMessages = &limit }
}

// Start wires the relay the way cmd/relay does and stops it when the test ends.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Reduced to 16 Mo for testing
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)

	telemetry := make(chan event.Event, 256)
	counter := event.NewCounter()
	supervisor := workers.NewSupervisor(log, telemetry, 50*time.Millisecond)
	messages := repositories.NewMessageRepository(db, log, o.limitMessages)
	users := repositories.NewUserRepository(db)
	orchestrator := runtime.NewOrchestrator(log, supervisor, messages, telemetry, 256, 100*time.Millisecond,
		event.NewDeliveryHandler(log, counter, time.Second),
		event.NewWorkerRestartedAfterPanicHandler(log, counter),
	)

	issuer := auth.NewTokenIssuer(Secret, time.Hour)
	socket := websocket.NewServer(log, orchestrator.Relay(), orchestrator.Delivered, websocket.Config{
		ConnectionBufferSize: 64,
		WriteTimeout:         time.Second,
		PingInterval:         200 * time.Millisecond,
		PongTimeout:          time.Second,
		MaxFrameSize:         1 << 16,
	})
	router := rest.NewRouter(log,
		rest.NewMessageHandler(services.NewChatService(messages, log, 4096), log),
		rest.NewAuthHandler(services.NewAuthService(users, issuer, log), log),
		socket, auth.Middleware(issuer, o.requireAuth),
		orchestrator.Relay().Count, 5*time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.Start(ctx)
	httpServer := httptest.NewServer(router)

	t.Cleanup(func() {
		orchestrator.Stop()
		httpServer.Close()
		cancel()
		_ = db.Close()
	})

	return &Server{
		URL:          httpServer.URL,
		Orchestrator: orchestrator,
		Messages:     messages,
		Users:        users,
		Counter:      counter,
		Issuer:       issuer,
	}
}
