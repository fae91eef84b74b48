// Package sqlite persists the operation journal, emitted events and custody
// ledger rows in a single SQLite file.
//
// Ledger state itself lives in memory and is rebuilt on start by replaying
// the journal. The other tables are write-only from the ledger's point of
// view and exist for queries and audits.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// FileName is the database file created inside the data directory.
const FileName = "catalogdao.db"

// DB wraps the SQLite connection.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database in dir and applies migrations.
// An empty dir opens a private in-memory database.
func Open(dir string) (*DB, error) {
	dsn := "file::memory:"
	path := ":memory:"
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		path = filepath.Join(dir, FileName)
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer. Also keeps a ":memory:" database alive across calls.
	conn.SetMaxOpenConns(1)

	db := &DB{db: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path, or ":memory:".
func (db *DB) Path() string { return db.path }

// Close closes the connection.
func (db *DB) Close() error { return db.db.Close() }

// Ping checks the connection is usable.
func (db *DB) Ping() error { return db.db.Ping() }

func (db *DB) migrate() error {
	for i, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Applied operations, in order. Replayed on start.
		`CREATE TABLE IF NOT EXISTS operations (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			height     INTEGER NOT NULL,
			caller     TEXT NOT NULL,
			kind       TEXT NOT NULL,
			args       TEXT NOT NULL DEFAULT '{}',
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Emitted events
		`CREATE TABLE IF NOT EXISTS events (
			id      TEXT PRIMARY KEY,
			type    TEXT NOT NULL,
			height  INTEGER NOT NULL,
			account TEXT NOT NULL DEFAULT '',
			attrs   TEXT NOT NULL DEFAULT '{}',
			time    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, height)`,
		`CREATE INDEX IF NOT EXISTS idx_events_account ON events(account)`,

		// Custody movements between stake positions and the reward pool
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  TEXT NOT NULL,
			height     INTEGER NOT NULL,
			type       TEXT NOT NULL,
			entry_type TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
			account    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			ref        TEXT NOT NULL DEFAULT '',
			balance    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account, id)`,

		// Last known block height
		`CREATE TABLE IF NOT EXISTS chain_tip (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			height     INTEGER NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}
