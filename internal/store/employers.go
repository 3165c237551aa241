package store

import (
	"context"
	"errors"
	"strings"

	"jobmail-engine/internal/domain"
)

// Employers is the employer directory. Names match exactly (after trimming).
type Employers struct {
	db *DB
}

func (d *DB) Employers() *Employers { return &Employers{db: d} }

// GetOrCreate returns the id of the named employer, creating it if needed.
func (e *Employers) GetOrCreate(ctx context.Context, name string) (int64, error) {
	emp, err := e.Ensure(ctx, name, "")
	return emp.ID, err
}

// Ensure get-or-creates the employer and records host as its domain when it
// has none yet. A concurrent insert of the same name is resolved by
// re-reading the winner.
func (e *Employers) Ensure(ctx context.Context, name, host string) (domain.Employer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = domain.UnknownEmployer
	}
	host = strings.ToLower(strings.TrimSpace(host))

	emp, err := e.Find(ctx, name)
	switch {
	case err == nil:
		if emp.Domain == "" && host != "" {
			if err := e.setDomain(ctx, emp.ID, host); err != nil {
				return emp, err
			}
			emp.Domain = host
		}
		return emp, nil
	case !errors.Is(err, ErrNotFound):
		return domain.Employer{}, err
	}

	var id int64
	err = e.db.Pool.QueryRowContext(ctx, e.db.rebind(`
INSERT INTO employers(name, domain, created_at)
VALUES(?,?,?)
RETURNING id;`), name, host, nowText()).Scan(&id)
	if err != nil {
		err = mapErr("create employer", err)
		if errors.Is(err, ErrConflict) {
			return e.Find(ctx, name)
		}
		return domain.Employer{}, err
	}
	return domain.Employer{ID: id, Name: name, Domain: host}, nil
}

func (e *Employers) Find(ctx context.Context, name string) (domain.Employer, error) {
	var emp domain.Employer
	err := e.db.Pool.QueryRowContext(ctx, e.db.rebind(
		`SELECT id, name, domain FROM employers WHERE name = ? LIMIT 1;`),
		strings.TrimSpace(name),
	).Scan(&emp.ID, &emp.Name, &emp.Domain)
	if err != nil {
		return domain.Employer{}, mapErr("find employer", err)
	}
	return emp, nil
}

// FindByDomain returns the employer whose recorded domain is host.
func (e *Employers) FindByDomain(ctx context.Context, host string) (domain.Employer, error) {
	var emp domain.Employer
	err := e.db.Pool.QueryRowContext(ctx, e.db.rebind(
		`SELECT id, name, domain FROM employers WHERE domain = ? ORDER BY id LIMIT 1;`),
		strings.ToLower(strings.TrimSpace(host)),
	).Scan(&emp.ID, &emp.Name, &emp.Domain)
	if err != nil {
		return domain.Employer{}, mapErr("find employer by domain", err)
	}
	return emp, nil
}

func (e *Employers) setDomain(ctx context.Context, id int64, host string) error {
	_, err := e.db.Pool.ExecContext(ctx, e.db.rebind(
		`UPDATE employers SET domain = ? WHERE id = ? AND domain = '';`), host, id)
	return mapErr("set employer domain", err)
}
