// Package runtime holds the live side of the relay: who is connected, how a
// message reaches them, and the background workers behind it.
// It contains no transport code, the websocket layer drives it.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       *Registry
	router         *Router
	relay          *Relay
	store          contract.IMessageStore
	acks           chan uuid.UUID
	telemetry      chan event.Event
	handlers       []event.Handler
	metricInterval time.Duration
	done           chan struct{}
}

// NewOrchestrator wires the registry, the router and the relay together.
// telemetry is shared with the supervisor so that restarts are reported too.
func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	store contract.IMessageStore, telemetry chan event.Event,
	ackBufferSize int, metricInterval time.Duration, handlers ...event.Handler) *Orchestrator {
	registry := NewRegistry()
	router := NewRouter(log, registry, telemetry)
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		router:         router,
		relay:          NewRelay(log, registry, router, store),
		store:          store,
		acks:           make(chan uuid.UUID, ackBufferSize),
		telemetry:      telemetry,
		handlers:       handlers,
		metricInterval: metricInterval,
	}
}

func (o *Orchestrator) Relay() *Relay {
	return o.relay
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Delivered reports that a msg-receive frame reached a recipient connection.
// The delivered flag is set asynchronously, a full queue loses the flag and
// the message stays available through history.
func (o *Orchestrator) Delivered(id uuid.UUID) {
	select {
	case o.acks <- id:
	default:
		o.log.Warn("delivery ack dropped, ack queue is full", "message_id", id)
	}
}

// Start registers the background workers and runs them under supervision.
// It returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		o.log.Warn("orchestrator already started")
		return
	}

	o.supervisor.Add(
		workers.NewDeliveryTrackerWorker(o.log, o.store, o.acks),
		workers.NewTelemetryWorker(o.log, o.telemetry, o.handlers...),
		workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
			{Name: "acks", Channel: o.acks},
			{Name: "telemetry", Channel: o.telemetry},
		}, o.telemetry, o.metricInterval),
		workers.NewProcessStatsWorker(o.log, o.telemetry, o.metricInterval),
	)

	o.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		o.log.Info("Starting orchestrator and all supervised workers")
		o.supervisor.Run(ctx)
	}(o.done)
}

// Stop closes every live connection, then stops the workers and waits for them.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.relay.CloseAll()
	o.supervisor.Stop()

	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
	o.log.Debug("Orchestrator stopped")
}
