// Package store provides SQLite-based persistence for lapserec: a
// durable key-value settings table (crash-recovery snapshots,
// preferences) and a table of finalized session summaries with their
// verification results.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    session_folder  TEXT NOT NULL,
    source_id       TEXT NOT NULL,
    started_at      INTEGER NOT NULL,
    ended_at        INTEGER NOT NULL,
    duration_ms     INTEGER NOT NULL,
    active_ms       INTEGER NOT NULL,
    frame_count     INTEGER NOT NULL,
    keystrokes      INTEGER NOT NULL,
    paste_count     INTEGER NOT NULL,
    score           INTEGER NOT NULL,
    verified        INTEGER NOT NULL,
    factors         TEXT NOT NULL,
    flags           TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`

// SessionRecord is a finalized session summary row.
type SessionRecord struct {
	ID            string
	SessionFolder string
	SourceID      string
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
	ActiveTime    time.Duration
	FrameCount    int
	Keystrokes    int
	PasteCount    int
	Score         int
	Verified      bool
	Factors       map[string]int
	Flags         []string
}

// Store is the SQLite-backed store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns a settings value. The second return is false if the key
// does not exist.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes a settings value, replacing any existing one.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes a settings key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// InsertSession persists a finalized session summary.
func (s *Store) InsertSession(rec *SessionRecord) error {
	factors, err := json.Marshal(rec.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	flags, err := json.Marshal(rec.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}

	verified := 0
	if rec.Verified {
		verified = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, session_folder, source_id, started_at, ended_at,
			duration_ms, active_ms, frame_count, keystrokes, paste_count,
			score, verified, factors, flags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionFolder, rec.SourceID,
		rec.StartedAt.UnixNano(), rec.EndedAt.UnixNano(),
		rec.Duration.Milliseconds(), rec.ActiveTime.Milliseconds(),
		rec.FrameCount, rec.Keystrokes, rec.PasteCount,
		rec.Score, verified, string(factors), string(flags),
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns a session summary by ID.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, session_folder, source_id, started_at, ended_at,
			duration_ms, active_ms, frame_count, keystrokes, paste_count,
			score, verified, factors, flags
		FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListSessions returns the most recent session summaries, newest first.
func (s *Store) ListSessions(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, session_folder, source_id, started_at, ended_at,
			duration_ms, active_ms, frame_count, keystrokes, paste_count,
			score, verified, factors, flags
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var recs []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var startedNs, endedNs, durationMs, activeMs int64
	var verified int
	var factors, flags string

	err := row.Scan(&rec.ID, &rec.SessionFolder, &rec.SourceID,
		&startedNs, &endedNs, &durationMs, &activeMs,
		&rec.FrameCount, &rec.Keystrokes, &rec.PasteCount,
		&rec.Score, &verified, &factors, &flags)
	if err != nil {
		return nil, err
	}

	rec.StartedAt = time.Unix(0, startedNs)
	rec.EndedAt = time.Unix(0, endedNs)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.ActiveTime = time.Duration(activeMs) * time.Millisecond
	rec.Verified = verified != 0

	if err := json.Unmarshal([]byte(factors), &rec.Factors); err != nil {
		return nil, fmt.Errorf("unmarshal factors: %w", err)
	}
	if err := json.Unmarshal([]byte(flags), &rec.Flags); err != nil {
		return nil, fmt.Errorf("unmarshal flags: %w", err)
	}

	return &rec, nil
}
