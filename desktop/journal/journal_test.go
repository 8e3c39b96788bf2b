package journal

import (
	"os"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a temporary test database
func setupTestDB(t *testing.T) *sqlx.DB {
	tmpDir := t.TempDir()
	dbPath := path.Join(tmpDir, "test_sessions.db")
	db := sqlx.MustConnect("sqlite3", dbPath)
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "NDM", "sessions.db")
	j, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestDBInit(t *testing.T) {
	db := setupTestDB(t)
	if err := DBInit(db); err != nil {
		t.Fatalf("DBInit returned error: %v", err)
	}
	// Idempotent
	if err := DBInit(db); err != nil {
		t.Fatalf("second DBInit returned error: %v", err)
	}

	var tableName string
	err := db.Get(&tableName, "SELECT name FROM sqlite_master WHERE type='table' AND name='session_events'")
	if err != nil {
		t.Fatalf("Table 'session_events' does not exist: %v", err)
	}

	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND tbl_name='session_events'")
	if err != nil {
		t.Fatalf("Failed to query indexes: %v", err)
	}
	if count < 2 {
		t.Errorf("Expected at least 2 indexes, got %d", count)
	}
}

func TestRecordAndBySession(t *testing.T) {
	j, err := New(setupTestDB(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	steps := []Kind{KindSessionStarted, KindSidecarSpawned, KindHealthReady, KindSidecarTerminated, KindSessionShutdown}
	for _, kind := range steps {
		if err := j.Record("session-a", kind, "detail "+string(kind)); err != nil {
			t.Fatalf("Record(%s) failed: %v", kind, err)
		}
	}
	if err := j.Record("session-b", KindSessionStarted, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, err := j.BySession("session-a")
	if err != nil {
		t.Fatalf("BySession failed: %v", err)
	}
	if len(events) != len(steps) {
		t.Fatalf("Expected %d events, got %d", len(steps), len(events))
	}
	for i, e := range events {
		if e.Kind != string(steps[i]) {
			t.Errorf("event %d kind = %s, want %s", i, e.Kind, steps[i])
		}
		if e.SessionID != "session-a" {
			t.Errorf("event %d session = %s", i, e.SessionID)
		}
		if e.ID == "" {
			t.Errorf("event %d has no id", i)
		}
		if time.Since(e.Time()) > time.Minute {
			t.Errorf("event %d timestamp %v is not recent", i, e.Time())
		}
	}
}

func TestRecent(t *testing.T) {
	j, err := New(setupTestDB(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	j.Record("s", KindSessionStarted, "")
	time.Sleep(5 * time.Millisecond)
	j.Record("s", KindHealthTimeout, "")
	time.Sleep(5 * time.Millisecond)
	j.Record("s", KindSessionShutdown, "")

	events, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Kind != string(KindSessionShutdown) || events[1].Kind != string(KindHealthTimeout) {
		t.Errorf("Recent order = %s, %s", events[0].Kind, events[1].Kind)
	}
}

func TestConcurrentRecord(t *testing.T) {
	j, err := Open(path.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer j.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := j.Record("s", KindSidecarSpawned, ""); err != nil {
				t.Errorf("Record failed: %v", err)
			}
		}()
	}
	wg.Wait()

	events, err := j.BySession("s")
	if err != nil {
		t.Fatalf("BySession failed: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("Expected 10 events, got %d", len(events))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	j, err := New(db)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	old := time.Now().UTC().Add(-48 * time.Hour).UnixMilli()
	_, err = db.Exec(`INSERT INTO session_events (id, session_id, kind, detail, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		"old-1", "s-old", string(KindSessionStarted), "", old)
	if err != nil {
		t.Fatalf("Failed to insert old event: %v", err)
	}
	j.Record("s-new", KindSessionStarted, "")

	deleted, err := j.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected to delete 1 event, deleted %d", deleted)
	}

	events, _ := j.Recent(10)
	if len(events) != 1 || events[0].SessionID != "s-new" {
		t.Errorf("remaining events = %v", events)
	}
}
