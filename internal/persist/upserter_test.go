package persist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmail-engine/internal/classify"
	"jobmail-engine/internal/config"
	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/store"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func enriched() domain.EnrichedPosting {
	return domain.EnrichedPosting{
		RawPosting: domain.RawPosting{
			Title:    "Data Engineer",
			URL:      "https://jobs.example.com/jobs/42",
			Location: domain.LocationNotSpecified,
			Domain:   "jobs.example.com",
			Employer: "Example Co",
		},
		Description: "We need Python and SQL.",
		WorkMode:    domain.WorkModeRemote,
		Enriched:    true,
		Source:      "http",
	}
}

func TestUpsert_TwiceKeepsOneRow(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	u := New(db, db.Employers(), classify.NewRuleClassifier(nil), "general", quietLogger())

	p := enriched()
	require.True(t, u.Upsert(ctx, p))
	first, err := db.FindByURL(ctx, p.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReprocessCount)

	require.True(t, u.Upsert(ctx, p))
	second, err := db.FindByURL(ctx, p.URL)
	require.NoError(t, err)

	assert.Equal(t, 2, second.ReprocessCount)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	assert.Equal(t, "general", second.BusinessUnit)
	assert.Equal(t, "Example Co", second.EmployerName)
	assert.Equal(t, domain.WorkModeRemote, second.WorkMode)

	n, err := db.CountPostings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	emp, err := db.Employers().Find(ctx, "Example Co")
	require.NoError(t, err)
	assert.Equal(t, "jobs.example.com", emp.Domain)
}

func TestUpsert_ClassifierPicksUnit(t *testing.T) {
	db := openDB(t)
	cls := classify.NewRuleClassifier([]config.BusinessUnit{{ID: "tech", Keywords: []string{"python"}}})
	u := New(db, db.Employers(), cls, "general", quietLogger())

	p := enriched()
	require.True(t, u.Upsert(context.Background(), p))
	got, err := db.FindByURL(context.Background(), p.URL)
	require.NoError(t, err)
	assert.Equal(t, "tech", got.BusinessUnit)
}

func TestUpsert_TruncatesBeforeWrite(t *testing.T) {
	db := openDB(t)
	u := New(db, db.Employers(), nil, "general", quietLogger())

	p := enriched()
	p.Title = strings.Repeat("t", 800)
	p.Location = strings.Repeat("l", 1500)
	p.Description = strings.Repeat("ñ", 5000)
	p.Requirements = strings.Repeat("r", 1200)
	p.Benefits = strings.Repeat("b", 1200)
	require.True(t, u.Upsert(context.Background(), p))

	got, err := db.FindByURL(context.Background(), p.URL)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxStoredTitleLen, utf8.RuneCountInString(got.Title))
	assert.Equal(t, domain.MaxStoredLocationLen, utf8.RuneCountInString(got.Location))
	assert.Equal(t, domain.MaxDescriptionLen, utf8.RuneCountInString(got.Description))
	assert.Equal(t, domain.MaxRequirementsLen, utf8.RuneCountInString(got.Requirements))
	assert.Equal(t, domain.MaxBenefitsLen, utf8.RuneCountInString(got.Benefits))
}

type failingStore struct{}

func (failingStore) UpsertPosting(context.Context, store.PostingRecord) (store.UpsertResult, error) {
	return store.UpsertResult{}, errors.New("disk full")
}

type staticEmployers struct{ err error }

func (s staticEmployers) Ensure(_ context.Context, name, host string) (domain.Employer, error) {
	return domain.Employer{ID: 7, Name: name, Domain: host}, s.err
}

func TestUpsert_WriteFailureIsFalse(t *testing.T) {
	u := New(failingStore{}, staticEmployers{}, nil, "general", quietLogger())
	assert.False(t, u.Upsert(context.Background(), enriched()))
}

func TestUpsert_EmployerFailureIsFalse(t *testing.T) {
	db := openDB(t)
	u := New(db, staticEmployers{err: errors.New("locked")}, nil, "general", quietLogger())
	assert.False(t, u.Upsert(context.Background(), enriched()))
}

func TestRecord_Defaults(t *testing.T) {
	p := enriched()
	p.Location = ""
	p.WorkMode = ""
	rec := Record(p, 3, "general")
	assert.Equal(t, domain.LocationNotSpecified, rec.Location)
	assert.Equal(t, domain.WorkModeUnknown, rec.WorkMode)
	assert.EqualValues(t, 3, rec.EmployerID)
}

func TestRecord_TruncationKeepsEdgeWhitespace(t *testing.T) {
	p := enriched()
	p.Description = strings.Repeat("d", domain.MaxDescriptionLen-1) + "   "
	p.Title = "  keep my spaces  "
	p.Benefits = " dental "

	rec := Record(p, 1, "general")
	assert.Equal(t, domain.MaxDescriptionLen, utf8.RuneCountInString(rec.Description))
	assert.Equal(t, strings.Repeat("d", domain.MaxDescriptionLen-1)+" ", rec.Description)
	assert.Equal(t, "  keep my spaces  ", rec.Title)
	assert.Equal(t, " dental ", rec.Benefits)
}

func TestRecord_BlankLocationIsNotSpecified(t *testing.T) {
	p := enriched()
	p.Location = "   "
	assert.Equal(t, domain.LocationNotSpecified, Record(p, 1, "general").Location)
}
