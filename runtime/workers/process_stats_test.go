package workers

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestProcessStatsWorker_Reports_Own_Process(t *testing.T) {
	req := require.New(t)
	telemetry := make(chan event.Event, 1)
	worker := NewProcessStatsWorker(logs.GetLoggerFromLevel(slog.LevelDebug), telemetry, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	select {
	case evt := <-telemetry:
		stats := evt.Payload.(event.ProcessStats)
		req.Equal(int32(os.Getpid()), stats.PID)
		req.Positive(stats.Ram)
		req.Positive(stats.Goroutines)
	case <-ctx.Done():
		req.Fail("no process stats received")
	}
}
