// Package persist turns enriched postings into stored rows.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobmail-engine/internal/classify"
	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/store"
	"jobmail-engine/internal/textutil"
)

type PostingStore interface {
	UpsertPosting(ctx context.Context, rec store.PostingRecord) (store.UpsertResult, error)
}

type EmployerStore interface {
	Ensure(ctx context.Context, name, host string) (domain.Employer, error)
}

type Upserter struct {
	postings    PostingStore
	employers   EmployerStore
	classifier  classify.Classifier
	defaultUnit string
	now         func() time.Time
	logger      *slog.Logger
}

func New(postings PostingStore, employers EmployerStore, classifier classify.Classifier, defaultUnit string, logger *slog.Logger) *Upserter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Upserter{
		postings:    postings,
		employers:   employers,
		classifier:  classifier,
		defaultUnit: defaultUnit,
		now:         time.Now,
		logger:      logger.With("component", "persist"),
	}
}

// Upsert reports whether the posting is safely stored. Creates, updates and
// unchanged re-sightings are all true; false means the write failed.
func (u *Upserter) Upsert(ctx context.Context, p domain.EnrichedPosting) bool {
	res, err := u.Save(ctx, p)
	if err != nil {
		u.logger.Error("save posting failed", "url", p.URL, "title", p.Title, "err", err)
		return false
	}
	u.logger.Debug("posting saved",
		"url", p.URL,
		"id", res.ID,
		"created", res.Created,
		"changed", res.Changed,
		"reprocess_count", res.ReprocessCount,
	)
	return true
}

func (u *Upserter) Save(ctx context.Context, p domain.EnrichedPosting) (store.UpsertResult, error) {
	emp, err := u.employers.Ensure(ctx, p.Employer, p.Domain)
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("employer %q: %w", p.Employer, err)
	}

	rec := Record(p, emp.ID, u.classify(p))
	rec.PublishedAt = u.now()
	res, err := u.postings.UpsertPosting(ctx, rec)
	if err != nil {
		return store.UpsertResult{}, err
	}
	return res, nil
}

func (u *Upserter) classify(p domain.EnrichedPosting) string {
	if u.classifier != nil {
		if id := u.classifier.Classify(p.Title, p.Description, p.Location); id != "" {
			return id
		}
	}
	return u.defaultUnit
}

// Record maps a posting onto a row, applying the storage limits.
func Record(p domain.EnrichedPosting, employerID int64, unit string) store.PostingRecord {
	loc := textutil.Truncate(p.Location, domain.MaxStoredLocationLen)
	if strings.TrimSpace(loc) == "" {
		loc = domain.LocationNotSpecified
	}
	wm := p.WorkMode
	if wm == "" {
		wm = domain.WorkModeUnknown
	}
	return store.PostingRecord{
		URL:          p.URL,
		Title:        textutil.Truncate(p.Title, domain.MaxStoredTitleLen),
		EmployerID:   employerID,
		BusinessUnit: unit,
		Location:     loc,
		Description:  textutil.Truncate(p.Description, domain.MaxDescriptionLen),
		Requirements: textutil.Truncate(p.Requirements, domain.MaxRequirementsLen),
		Benefits:     textutil.Truncate(p.Benefits, domain.MaxBenefitsLen),
		WorkMode:     wm,
	}
}
