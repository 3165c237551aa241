package events

import (
	"context"
	"log/slog"
)

// Fanout publishes to every publisher. Failures are logged, never returned:
// events are advisory and must not fail a run.
type Fanout struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewFanout(logger *slog.Logger, pubs ...Publisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fanout{logger: logger.With("component", "events")}
	for _, p := range pubs {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	if f == nil {
		return nil
	}
	for _, p := range f.publishers {
		if err := p.Publish(ctx, e); err != nil {
			f.logger.Warn("event publish failed", "type", e.Type, "id", e.ID, "err", err)
		}
	}
	return nil
}
