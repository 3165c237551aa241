package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS employers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  domain TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS postings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  url TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  employer_id INTEGER NOT NULL REFERENCES employers(id),
  business_unit TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  requirements TEXT NOT NULL DEFAULT '',
  benefits TEXT NOT NULL DEFAULT '',
  work_mode TEXT NOT NULL DEFAULT 'unknown',
  published_at TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  reprocess_count INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`, `
CREATE INDEX IF NOT EXISTS idx_postings_employer ON postings(employer_id);`, `
CREATE INDEX IF NOT EXISTS idx_postings_updated ON postings(updated_at);`, `
CREATE INDEX IF NOT EXISTS idx_employers_domain ON employers(domain);`,
}

var postgresSchema = []string{`
CREATE TABLE IF NOT EXISTS employers (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  domain TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS postings (
  id BIGSERIAL PRIMARY KEY,
  url TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  employer_id BIGINT NOT NULL REFERENCES employers(id),
  business_unit TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  requirements TEXT NOT NULL DEFAULT '',
  benefits TEXT NOT NULL DEFAULT '',
  work_mode TEXT NOT NULL DEFAULT 'unknown',
  published_at TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  reprocess_count INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`, `
CREATE INDEX IF NOT EXISTS idx_postings_employer ON postings(employer_id);`, `
CREATE INDEX IF NOT EXISTS idx_postings_updated ON postings(updated_at);`, `
CREATE INDEX IF NOT EXISTS idx_employers_domain ON employers(domain);`,
}

// Migrate brings the schema up to date. SQLite tracks the version in
// PRAGMA user_version; the Postgres DDL is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if d.driver == DriverPgx {
		if err := execAll(ctx, tx, postgresSchema); err != nil {
			return err
		}
		return tx.Commit()
	}

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= schemaVersion {
		return tx.Commit()
	}
	if err := execAll(ctx, tx, sqliteSchema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SchemaVersion reports PRAGMA user_version (SQLite only).
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	if d.driver != DriverSQLite {
		return schemaVersion, nil
	}
	var v int
	err := d.Pool.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v)
	return v, err
}
