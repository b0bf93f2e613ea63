package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB together with the dialect it speaks.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a connection pool for driver and verifies it with a ping.
func NewDB(driver, connString string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one connection keeps in-memory databases shared and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DB{Client: db, Driver: driver}, nil
}

// Rebind rewrites ? placeholders into $n for Postgres. Queries in this
// repository never contain a literal question mark.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
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

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS teams (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	leader_id     TEXT NOT NULL REFERENCES users(id),
	supervisor_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS team_members (
	team_id  TEXT NOT NULL REFERENCES teams(id),
	user_id  TEXT NOT NULL REFERENCES users(id),
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (team_id, user_id)
);

CREATE TABLE IF NOT EXISTS attendance (
	team_id     TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	date        VARCHAR(10) NOT NULL,
	recorded_at {{TS}} NOT NULL,
	status      VARCHAR(16) NOT NULL,
	excuse      TEXT NOT NULL DEFAULT '',
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	photo_url   TEXT NOT NULL DEFAULT '',
	updated_by  TEXT NOT NULL DEFAULT '',
	updated_at  {{TS}},
	PRIMARY KEY (team_id, user_id, date)
);

CREATE INDEX IF NOT EXISTS idx_attendance_team_date ON attendance(team_id, date);

CREATE INDEX IF NOT EXISTS idx_attendance_user_date ON attendance(user_id, date);

CREATE TABLE IF NOT EXISTS weekly_approvals (
	team_id     TEXT NOT NULL,
	student_id  TEXT NOT NULL,
	week        VARCHAR(10) NOT NULL,
	status      VARCHAR(16) NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	reviewed_by TEXT NOT NULL,
	reviewed_at {{TS}} NOT NULL,
	PRIMARY KEY (team_id, student_id, week)
);

CREATE TABLE IF NOT EXISTS weekly_approval_history (
	id          TEXT PRIMARY KEY,
	team_id     TEXT NOT NULL,
	student_id  TEXT NOT NULL,
	week        VARCHAR(10) NOT NULL,
	status      VARCHAR(16) NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	reviewed_by TEXT NOT NULL,
	decided_at  {{TS}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_approval_history_key ON weekly_approval_history(team_id, student_id, week, decided_at)
`

// Migrate creates the tables this service reads and writes. It is safe to run
// on every start.
func (d *DB) Migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if d.Driver == DriverSQLite {
		ts = "TIMESTAMP"
	}
	for _, stmt := range strings.Split(strings.ReplaceAll(schema, "{{TS}}", ts), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
