package main

import (
	"database/sql"
	"fmt"
)

// createSchema creates all tables needed by the service. Safe to call
// on every startup - everything uses IF NOT EXISTS. Timestamps are
// always written from Go so the DDL stays portable between SQLite and
// Postgres.
func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
-- Tasting sessions
CREATE TABLE IF NOT EXISTS session (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    host_name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'waiting', 'active', 'paused', 'reveal', 'completed')),
    current_index INTEGER NOT NULL DEFAULT 0,
    current_phase TEXT NOT NULL DEFAULT 'pour',
    locked BOOLEAN NOT NULL DEFAULT FALSE,
    weight_nose REAL NOT NULL,
    weight_palate REAL NOT NULL,
    weight_finish REAL NOT NULL,
    weight_balance REAL NOT NULL,
    created_at TIMESTAMP NOT NULL,
    opened_at TIMESTAMP,
    started_at TIMESTAMP,
    revealed_at TIMESTAMP,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_session_status ON session(status);

-- Flight entries
CREATE TABLE IF NOT EXISTS whiskey (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    distillery TEXT NOT NULL DEFAULT '',
    age_years INTEGER NOT NULL DEFAULT 0,
    abv REAL NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_whiskey_session ON whiskey(session_id, position);

-- Participants (moderator included)
CREATE TABLE IF NOT EXISTS participant (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'taster' CHECK (role IN ('moderator', 'taster')),
    joined_at TIMESTAMP NOT NULL,
    last_seen TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_participant_name ON participant(session_id, lower(name));
CREATE INDEX IF NOT EXISTS idx_participant_session ON participant(session_id);

-- Ballots: one row per taster per whiskey
CREATE TABLE IF NOT EXISTS score (
    participant_id TEXT NOT NULL REFERENCES participant(id) ON DELETE CASCADE,
    whiskey_id TEXT NOT NULL REFERENCES whiskey(id) ON DELETE CASCADE,
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    nose INTEGER NOT NULL CHECK (nose BETWEEN 0 AND 100),
    palate INTEGER NOT NULL CHECK (palate BETWEEN 0 AND 100),
    finish INTEGER NOT NULL CHECK (finish BETWEEN 0 AND 100),
    balance INTEGER NOT NULL CHECK (balance BETWEEN 0 AND 100),
    total REAL NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    submitted_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (participant_id, whiskey_id)
);

CREATE INDEX IF NOT EXISTS idx_score_session ON score(session_id);
CREATE INDEX IF NOT EXISTS idx_score_whiskey ON score(whiskey_id);

-- Immutable reveal-time results
CREATE TABLE IF NOT EXISTS result_snapshot (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    computed_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshot_session ON result_snapshot(session_id);
`
