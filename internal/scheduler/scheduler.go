package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task once right away and then on each tick until ctx is done.
// Runs never overlap; a tick that fires during a run is dropped.
func Every(ctx context.Context, interval time.Duration, name string, task Task, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler", "task", name)

	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Error("task failed", "err", err, "dur_ms", time.Since(start).Milliseconds())
			return
		}
		logger.Debug("task done", "dur_ms", time.Since(start).Milliseconds())
	}

	if ctx.Err() != nil {
		return
	}
	run()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
