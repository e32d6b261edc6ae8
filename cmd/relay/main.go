package main

import (
	"chat-relay/auth"
	"chat-relay/domain/event"
	grpcserver "chat-relay/infrastructure/grpc"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run owns every resource of the process so that deferred cleanups
// always execute before main exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Supervision & Orchestration
	telemetry := make(chan event.Event, config.TelemetryBufferSize)
	counter := event.NewCounter()
	sup := workers.NewSupervisor(log, telemetry, config.RestartInterval)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	userRepository := repositories.NewUserRepository(db)

	orchestrator := runtime.NewOrchestrator(
		log, sup, messageRepository, telemetry,
		config.AckBufferSize, config.MetricInterval,
		event.NewDeliveryHandler(log, counter, config.LatencyThreshold),
		event.NewChannelCapacityHandler(log, config.LowCapacityThreshold),
		event.NewWorkerRestartedAfterPanicHandler(log, counter),
		event.NewProcessStatsHandler(log),
	)

	// 4. Services & transports
	issuer := auth.NewTokenIssuer(config.AuthSecret, config.AuthTokenDuration)
	chatService := services.NewChatService(messageRepository, log, config.MaxContentLength)
	authService := services.NewAuthService(userRepository, issuer, log)

	socket := websocket.NewServer(log, orchestrator.Relay(), orchestrator.Delivered, websocket.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteTimeout:         config.WriteTimeout,
		PingInterval:         config.PingInterval,
		PongTimeout:          config.PongTimeout,
		MaxFrameSize:         config.MaxFrameSize,
		AllowedOrigins:       config.Origins(),
	})
	router := rest.NewRouter(log,
		rest.NewMessageHandler(chatService, log),
		rest.NewAuthHandler(authService, log),
		socket, auth.Middleware(issuer, config.RequireAuth),
		orchestrator.Relay().Count, config.RequestTimeout,
	)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)

	// 6. Listeners
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: config.RequestTimeout,
	}
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		orchestrator.Stop()
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	health := grpcserver.NewHealthServer(log)

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		if err := health.Serve(grpcListener); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	health.SetServing(true)

	// 7. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Server failure, shutting down", "error", runErr)
	}

	// 8. Final Cleanup
	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	health.Stop()
	log.Info("Program stopped cleanly",
		"routed", counter.Get(event.MessageRoutedType),
		"recipient_offline", counter.Get(event.RecipientOfflineType),
		"push_failed", counter.Get(event.PushFailedType),
		"worker_restarts", counter.Get(event.RestartedAfterPanicType))

	return runErr
}
