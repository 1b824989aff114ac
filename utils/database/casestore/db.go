package casestore

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable moderation ledger. It owns persistence of cases,
// case notes, case links and mute sessions. Rows are never deleted;
// cases only have their status flipped, so the ledger is a complete
// append-only replay source.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cases (
    guild_id        TEXT NOT NULL,
    case_id         INTEGER NOT NULL,
    subject_id      TEXT NOT NULL,
    actor_id        TEXT NOT NULL,
    kind            TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    trigger_content TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    expires_at      INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'active',
    PRIMARY KEY (guild_id, case_id)
);
CREATE INDEX IF NOT EXISTS idx_cases_subject ON cases(guild_id, subject_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(guild_id, status, kind);
CREATE INDEX IF NOT EXISTS idx_cases_expiry ON cases(status, expires_at);

CREATE TABLE IF NOT EXISTS case_notes (
    note_id    INTEGER PRIMARY KEY AUTOINCREMENT,
    guild_id   TEXT NOT NULL,
    case_id    INTEGER NOT NULL,
    author_id  TEXT NOT NULL,
    text       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_case ON case_notes(guild_id, case_id);

CREATE TABLE IF NOT EXISTS case_links (
    guild_id   TEXT NOT NULL,
    case_a     INTEGER NOT NULL,
    case_b     INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (guild_id, case_a, case_b)
);

CREATE TABLE IF NOT EXISTS mute_sessions (
    session_id       INTEGER PRIMARY KEY AUTOINCREMENT,
    guild_id         TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    username         TEXT NOT NULL DEFAULT '',
    reason           TEXT NOT NULL DEFAULT '',
    trigger_content  TEXT NOT NULL DEFAULT '',
    muted_at         INTEGER NOT NULL,
    unmuted_at       INTEGER NOT NULL DEFAULT 0,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    muted_by         TEXT NOT NULL DEFAULT '',
    unmuted_by       TEXT NOT NULL DEFAULT '',
    case_id          INTEGER NOT NULL DEFAULT 0,
    is_active        BOOLEAN NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON mute_sessions(guild_id, user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_active ON mute_sessions(is_active);
`

// Init opens the ledger database and ensures the tables exist.
func Init(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to case database: %w", err)
	}
	// SQLite serializes writers; one connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create case tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const (
	readRetries    = 3
	retryBaseDelay = 100 * time.Millisecond
)

// withRetry retries a transient read a bounded number of times with
// backoff. Validation and not-found failures are not retried.
func withRetry(op string, fn func() error) error {
	var err error
	delay := retryBaseDelay
	for attempt := 0; attempt < readRetries; attempt++ {
		if err = fn(); err == nil || errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if attempt < readRetries-1 {
			log.Printf("casestore: %s failed (attempt %d): %v", op, attempt+1, err)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
