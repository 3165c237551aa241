package store

import (
	"context"
	"time"

	"jobmail-engine/internal/domain"
)

// PostingRecord is one row to write. Field limits are enforced by the caller.
type PostingRecord struct {
	URL          string
	Title        string
	EmployerID   int64
	BusinessUnit string
	Location     string
	Description  string
	Requirements string
	Benefits     string
	WorkMode     domain.WorkMode
	PublishedAt  time.Time
}

type UpsertResult struct {
	ID             int64
	Created        bool
	Changed        bool
	ReprocessCount int
	UpdatedAt      time.Time
}

// The dirty check lives inside the statement so concurrent sightings of the
// same URL cannot race between a read and a write. Every sighting bumps
// reprocess_count; updated_at moves only when a field differs.
const upsertPostingSQL = `
INSERT INTO postings (
  url, title, employer_id, business_unit, location, description,
  requirements, benefits, work_mode, published_at, active,
  reprocess_count, created_at, updated_at
)
VALUES (?,?,?,?,?,?,?,?,?,?,1,1,?,?)
ON CONFLICT(url) DO UPDATE SET
  reprocess_count = postings.reprocess_count + 1,
  title = excluded.title,
  employer_id = excluded.employer_id,
  business_unit = excluded.business_unit,
  location = excluded.location,
  description = excluded.description,
  requirements = excluded.requirements,
  benefits = excluded.benefits,
  work_mode = excluded.work_mode,
  updated_at = CASE
    WHEN postings.title <> excluded.title
      OR postings.employer_id <> excluded.employer_id
      OR postings.business_unit <> excluded.business_unit
      OR postings.location <> excluded.location
      OR postings.description <> excluded.description
      OR postings.requirements <> excluded.requirements
      OR postings.benefits <> excluded.benefits
      OR postings.work_mode <> excluded.work_mode
    THEN excluded.updated_at
    ELSE postings.updated_at
  END
RETURNING id, reprocess_count, updated_at;`

func (d *DB) UpsertPosting(ctx context.Context, rec PostingRecord) (UpsertResult, error) {
	now := nowText()
	published := now
	if !rec.PublishedAt.IsZero() {
		published = formatTime(rec.PublishedAt)
	}
	workMode := rec.WorkMode
	if workMode == "" {
		workMode = domain.WorkModeUnknown
	}

	var (
		res     UpsertResult
		updated string
	)
	err := d.Pool.QueryRowContext(ctx, d.rebind(upsertPostingSQL),
		rec.URL, rec.Title, rec.EmployerID, rec.BusinessUnit, rec.Location, rec.Description,
		rec.Requirements, rec.Benefits, string(workMode), published,
		now, now,
	).Scan(&res.ID, &res.ReprocessCount, &updated)
	if err != nil {
		return UpsertResult{}, mapErr("upsert posting", err)
	}
	res.Created = res.ReprocessCount == 1
	res.Changed = !res.Created && updated == now
	res.UpdatedAt = parseTime(updated)
	return res, nil
}

const postingColumns = `
  p.id, p.url, p.title, p.employer_id, e.name, p.business_unit, p.location,
  p.description, p.requirements, p.benefits, p.work_mode, p.published_at,
  p.active, p.reprocess_count, p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (domain.PersistedPosting, error) {
	var (
		p                           domain.PersistedPosting
		workMode                    string
		active                      int
		published, created, updated string
	)
	if err := row.Scan(
		&p.ID, &p.URL, &p.Title, &p.EmployerID, &p.EmployerName, &p.BusinessUnit, &p.Location,
		&p.Description, &p.Requirements, &p.Benefits, &workMode, &published,
		&active, &p.ReprocessCount, &created, &updated,
	); err != nil {
		return domain.PersistedPosting{}, err
	}
	p.WorkMode = domain.WorkMode(workMode)
	p.Active = active != 0
	p.PublishedAt = parseTime(published)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func (d *DB) FindByURL(ctx context.Context, url string) (domain.PersistedPosting, error) {
	row := d.Pool.QueryRowContext(ctx, d.rebind(`
SELECT`+postingColumns+`
FROM postings p
JOIN employers e ON e.id = p.employer_id
WHERE p.url = ?
LIMIT 1;`), url)
	p, err := scanPosting(row)
	if err != nil {
		return domain.PersistedPosting{}, mapErr("find posting", err)
	}
	return p, nil
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit maps a requested page size onto 1..MaxListLimit; zero or less
// means DefaultListLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// ListRecent returns the most recently updated postings, newest first.
func (d *DB) ListRecent(ctx context.Context, limit int) ([]domain.PersistedPosting, error) {
	limit = ClampLimit(limit)
	rows, err := d.Pool.QueryContext(ctx, d.rebind(`
SELECT`+postingColumns+`
FROM postings p
JOIN employers e ON e.id = p.employer_id
ORDER BY p.updated_at DESC, p.id DESC
LIMIT ?;`), limit)
	if err != nil {
		return nil, mapErr("list postings", err)
	}
	defer rows.Close()

	var out []domain.PersistedPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, mapErr("scan posting", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list postings", err)
	}
	return out, nil
}

func (d *DB) CountPostings(ctx context.Context) (int, error) {
	var n int
	if err := d.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings;`).Scan(&n); err != nil {
		return 0, mapErr("count postings", err)
	}
	return n, nil
}
