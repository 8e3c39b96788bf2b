package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Kind names a session lifecycle step.
type Kind string

const (
	KindSessionStarted     Kind = "session_started"
	KindSidecarSpawned     Kind = "sidecar_spawned"
	KindSidecarUnavailable Kind = "sidecar_unavailable"
	KindSidecarSkipped     Kind = "sidecar_skipped"
	KindHealthReady        Kind = "health_ready"
	KindHealthTimeout      Kind = "health_timeout"
	KindSidecarTerminated  Kind = "sidecar_terminated"
	KindSessionShutdown    Kind = "session_shutdown"
)

// Event represents a journal entry in the database
type Event struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	Kind      string `db:"kind"`
	Detail    string `db:"detail"`
	Timestamp int64  `db:"timestamp"` // Unix milliseconds, UTC
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Journal persists session lifecycle events so past startups can be inspected after
// the fact.
type Journal struct {
	db *sqlx.DB
}

// Open connects to (creating if needed) the SQLite database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	j, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an existing connection, creating the schema if needed.
func New(db *sqlx.DB) (*Journal, error) {
	if err := DBInit(db); err != nil {
		return nil, fmt.Errorf("failed to initialise journal: %w", err)
	}
	// Session goroutines record concurrently; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &Journal{db: db}, nil
}

// DBInit initializes the session events table
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS session_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_session_events_timestamp ON session_events(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id)`)
	return err
}

// Record appends an event for the given session.
func (j *Journal) Record(sessionID string, kind Kind, detail string) error {
	_, err := j.db.Exec(`
		INSERT INTO session_events (id, session_id, kind, detail, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(),
		sessionID,
		string(kind),
		detail,
		time.Now().UTC().UnixMilli(),
	)
	return err
}

// Recent retrieves the most recent events across all sessions, newest first.
func (j *Journal) Recent(limit int) ([]Event, error) {
	var events []Event
	err := j.db.Select(&events,
		"SELECT * FROM session_events ORDER BY timestamp DESC, rowid DESC LIMIT $1",
		limit)
	return events, err
}

// BySession retrieves every event of one session in the order they happened.
func (j *Journal) BySession(sessionID string) ([]Event, error) {
	var events []Event
	err := j.db.Select(&events,
		"SELECT * FROM session_events WHERE session_id = $1 ORDER BY timestamp ASC, rowid ASC",
		sessionID)
	return events, err
}

// DeleteOlderThan deletes events older than the specified duration
func (j *Journal) DeleteOlderThan(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).UnixMilli()
	result, err := j.db.Exec("DELETE FROM session_events WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
