// Package store is the SQL posting store and employer directory. SQLite
// (modernc, no cgo) is the default; Postgres works through pgx's
// database/sql driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

type DB struct {
	Pool   *sql.DB
	driver string
}

// Open connects with the named driver and runs migrations.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		db, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	case DriverPgx, "postgres":
		pool, err := sql.Open(DriverPgx, dsn)
		if err != nil {
			return nil, err
		}
		pool.SetMaxOpenConns(4)
		pool.SetConnMaxLifetime(5 * time.Minute)
		db := &DB{Pool: pool, driver: DriverPgx}
		if err := db.ping(ctx); err != nil {
			_ = pool.Close()
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = pool.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// OpenSQLite opens (without migrating) a SQLite file. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*DB, error) {
	memory := path == ":memory:" || path == ""
	var dsn string
	if memory {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	} else {
		// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}

	pool, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}

	// sqlite wants a single writer; memory databases die with their connection
	pool.SetMaxOpenConns(1)
	if !memory {
		pool.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{Pool: pool, driver: DriverSQLite}
	if err := db.ping(context.Background()); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.Pool.PingContext(ctx)
}

func (d *DB) Driver() string { return d.driver }

// rebind rewrites ? placeholders to $n for Postgres.
func (d *DB) rebind(q string) string {
	if d.driver != DriverPgx {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) Close() error {
	if d == nil || d.Pool == nil {
		return nil
	}
	return d.Pool.Close()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func nowText() string { return formatTime(time.Now()) }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
