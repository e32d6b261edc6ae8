package workers

import (
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker periodically samples CPU, memory and threads of the relay process.
type ProcessStatsWorker struct {
	log            *slog.Logger
	telemetry      chan event.Event
	metricInterval time.Duration
}

func NewProcessStatsWorker(log *slog.Logger, telemetry chan event.Event, metricInterval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{log: log, telemetry: telemetry, metricInterval: metricInterval}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			select {
			case w.telemetry <- event.New(event.ProcessStatsType, stats):
			default:
				w.log.Debug("telemetry event lost", "type", event.ProcessStatsType)
			}
		}
	}
}

// selfStats retrieves memory, CPU and thread count for the given process.
func selfStats(p *process.Process) (event.ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return event.ProcessStats{}, fmt.Errorf("memory: %w", err)
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return event.ProcessStats{}, fmt.Errorf("cpu: %w", err)
	}
	threads, err := p.NumThreads()
	if err != nil {
		return event.ProcessStats{}, fmt.Errorf("threads: %w", err)
	}
	return event.ProcessStats{
		PID:        p.Pid,
		Threads:    threads,
		Goroutines: goruntime.NumGoroutine(),
		Cpu:        cpuPercent,
		Ram:        memInfo.RSS,
	}, nil
}
