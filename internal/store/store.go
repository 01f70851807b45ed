// Package store persists sessions and their event log in SQLite.
//
// The database runs in WAL mode so the poller's writes never block readers
// for longer than a single statement. Writers that need several statements
// to land together use InTx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SchemaVersion tracks the current database schema version.
const SchemaVersion = 1

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePane is returned when a session is created for a pane
	// that already has one.
	ErrDuplicatePane = errors.New("pane already has a session")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn holds the row-level operations shared by Store and Tx.
type conn struct {
	q querier
}

// Store wraps the SQLite database. Safe for concurrent use.
type Store struct {
	conn
	db *sql.DB
}

// Tx is a write transaction opened by Store.InTx.
type Tx struct {
	conn
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?" + strings.Join([]string{
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_pragma=synchronous(NORMAL)",
		"_txlock=immediate",
	}, "&")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: read journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		db.Close()
		return nil, fmt.Errorf("store: journal mode is %q, want wal", mode)
	}

	return &Store{conn: conn{q: db}, db: db}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Migrate creates tables and indexes if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct {
		name string
		sql  string
	}{
		{"metadata", `
			CREATE TABLE IF NOT EXISTS metadata (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id               TEXT PRIMARY KEY,
				pane_id          TEXT NOT NULL UNIQUE,
				session_name     TEXT NOT NULL,
				window_index     INTEGER NOT NULL,
				pane_index       INTEGER NOT NULL,
				working_dir      TEXT NOT NULL DEFAULT '',
				state            TEXT NOT NULL,
				detection_method TEXT NOT NULL,
				last_activity    INTEGER NOT NULL,
				created_at       INTEGER NOT NULL,
				updated_at       INTEGER NOT NULL
			)`},
		// session_id is deliberately not a FOREIGN KEY: events outlive the
		// session they describe.
		{"events", `
			CREATE TABLE IF NOT EXISTS events (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				payload    TEXT,
				timestamp  INTEGER NOT NULL
			)`},
		{"idx_sessions_pane_id", `CREATE INDEX IF NOT EXISTS idx_sessions_pane_id ON sessions(pane_id)`},
		{"idx_sessions_state", `CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`},
		{"idx_events_session_id", `CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id)`},
		{"idx_events_timestamp", `CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.sql); err != nil {
			return fmt.Errorf("store: create %s: %w", st.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", SchemaVersion),
	); err != nil {
		return fmt.Errorf("store: set schema version: %w", err)
	}

	return tx.Commit()
}

// InTx runs fn in a single write transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{conn: conn{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// JournalMode returns the active journal mode (e.g., "wal").
func (s *Store) JournalMode(ctx context.Context) (string, error) {
	var mode string
	err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
	return mode, err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Without extended result codes only the primary code is set.
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
