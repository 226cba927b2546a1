package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
	CREATE TABLE IF NOT EXISTS servers (
		id              TEXT    PRIMARY KEY,
		organization_id TEXT    NOT NULL DEFAULT '',
		name            TEXT    NOT NULL,
		game_key        TEXT    NOT NULL,
		status          TEXT    NOT NULL DEFAULT 'CREATING',
		container_id    TEXT    NOT NULL DEFAULT '',
		memory_mib      INTEGER NOT NULL DEFAULT 0,
		cpu_shares      INTEGER NOT NULL DEFAULT 0,
		created_by      TEXT    NOT NULL DEFAULT '',
		created_at      TEXT    NOT NULL,
		updated_at      TEXT    NOT NULL
	);

	CREATE TABLE IF NOT EXISTS server_ports (
		server_id      TEXT    NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		position       INTEGER NOT NULL,
		container_port INTEGER NOT NULL,
		host_port      INTEGER NOT NULL,
		protocol       TEXT    NOT NULL DEFAULT 'tcp',
		PRIMARY KEY (server_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_server_ports_host ON server_ports(host_port);

	CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT    PRIMARY KEY,
		server_id   TEXT    NOT NULL,
		type        TEXT    NOT NULL,
		status      TEXT    NOT NULL DEFAULT 'PENDING',
		progress    INTEGER NOT NULL DEFAULT 0,
		payload     TEXT    NOT NULL DEFAULT '{}',
		logs        TEXT    NOT NULL DEFAULT '',
		error       TEXT,
		created_at  TEXT    NOT NULL,
		started_at  TEXT,
		finished_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_server ON jobs(server_id, created_at);

	CREATE TABLE IF NOT EXISTS custom_scripts (
		server_id  TEXT PRIMARY KEY REFERENCES servers(id) ON DELETE CASCADE,
		content    TEXT NOT NULL,
		hash       TEXT NOT NULL,
		ports      TEXT NOT NULL DEFAULT '[]',
		env        TEXT NOT NULL DEFAULT '{}',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS port_reservations (
		host_port   INTEGER PRIMARY KEY,
		server_id   TEXT    NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		reserved_at TEXT    NOT NULL
	);
`

// Store is the job ledger. It owns Server, Job, CustomScript and port
// reservation rows.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New migrates the schema on db and returns a Store over it.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// SetClock replaces the time source. Intended for testing.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
