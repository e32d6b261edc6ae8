package workers

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"reflect"
	"time"
)

// NamedChannel is a channel watched by the ChannelCapacityWorker.
// Channel must be a channel value of any element type.
type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker samples the fill level of the relay internal channels.
// len and cap never block, and a lost sample is harmless.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	telemetry      chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	telemetry chan event.Event, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		telemetry:      telemetry,
		metricInterval: metricInterval,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *ChannelCapacityWorker) sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		evt := event.New(event.ChannelCapacityType, event.ChannelCapacity{
			ChannelName: nc.Name,
			Capacity:    v.Cap(),
			Length:      v.Len(),
		})
		select {
		case w.telemetry <- evt:
		default:
			w.log.Debug("telemetry event lost", "type", evt.Type, "channel", nc.Name)
		}
	}
}
