// CLAUDE:SUMMARY SQLite-backed per-session UI state: key → JSON blob, implements onboarding.Store.
// Package statestore persists per-session UI state in SQLite. Each
// session key owns one row holding a JSON blob, which keeps the schema
// stable while the shape of the state evolves.
//
//	db, err := statestore.Open("db/console.db")
//	store := statestore.New(db)
//	ctrl := onboarding.New(store, 4)
//
// Open applies the production pragmas (WAL, foreign_keys, busy_timeout,
// synchronous NORMAL) and creates parent directories. Tests pass
// ":memory:".
package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chatdesk/console/onboarding"
)

// Schema for the ui_state table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS ui_state (
	session_key TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	updated_at  INTEGER NOT NULL
);
`

// Open opens the console's SQLite database with production pragmas and
// applies the statestore schema. Parent directories are created for
// file-backed paths.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("statestore: mkdir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statestore: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("statestore: %s: %w", p, err)
		}
	}

	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ApplySchema creates the ui_state table if missing.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("statestore: apply schema: %w", err)
	}
	return nil
}

// Store reads and writes onboarding state rows. Implements
// onboarding.Store.
type Store struct {
	db *sql.DB
}

// New creates a Store over an opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get loads the state blob for a session key. The bool is false when the
// key has never been written.
func (s *Store) Get(ctx context.Context, key string) (onboarding.State, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM ui_state WHERE session_key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return onboarding.State{}, false, nil
	}
	if err != nil {
		return onboarding.State{}, false, fmt.Errorf("statestore: get %s: %w", key, err)
	}

	var st onboarding.State
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return onboarding.State{}, false, fmt.Errorf("statestore: decode %s: %w", key, err)
	}
	return st, true, nil
}

// Put upserts the state blob for a session key.
func (s *Store) Put(ctx context.Context, key string, st onboarding.State) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("statestore: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ui_state (session_key, state, updated_at) VALUES (?,?,?)
		ON CONFLICT(session_key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		key, string(blob), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("statestore: put %s: %w", key, err)
	}
	return nil
}
