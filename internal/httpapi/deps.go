package httpapi

import (
	"context"
	"log/slog"

	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/events"
	"jobmail-engine/internal/health"
	"jobmail-engine/internal/pipeline"
)

type PostingLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.PersistedPosting, error)
}

type Deps struct {
	Hub *events.Hub

	// Snapshot reports the current (or last) run.
	Snapshot func() pipeline.RunStats
	// LastSample reports the latest health sample, if any.
	LastSample func() (health.Sample, bool)

	Postings PostingLister
	Logger   *slog.Logger
}
