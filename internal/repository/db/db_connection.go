package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// SQLite tolerates a single writer best.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaCoverState = `
CREATE TABLE IF NOT EXISTS cover_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    position INTEGER,
    tilt INTEGER,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaCoverTimings = `
CREATE TABLE IF NOT EXISTS cover_timings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    travel_open_ms INTEGER NOT NULL DEFAULT 0,
    travel_close_ms INTEGER NOT NULL DEFAULT 0,
    tilt_open_ms INTEGER NOT NULL DEFAULT 0,
    tilt_close_ms INTEGER NOT NULL DEFAULT 0,
    travel_overhead_ms INTEGER NOT NULL DEFAULT 0,
    tilt_overhead_ms INTEGER NOT NULL DEFAULT 0,
    min_movement_ms INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaCoverEvents = `
CREATE TABLE IF NOT EXISTS cover_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaCoverState,
		schemaCoverTimings,
		schemaCoverEvents,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
