// Package sqlitetest builds SQLite files in WAL mode for tests that need to
// reason about checkpoints.
package sqlitetest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// WALState captures the files of a database around a checkpoint.
//
// The database has a table "notes" with two rows. Row 1 ("checkpointed") was
// checkpointed into the base file before PreBase was captured. Row 2
// ("only in wal") lives only in PreWAL. PostBase is the base file after a
// later checkpoint merged row 2 and truncated the WAL.
type WALState struct {
	PreBase  []byte
	PreWAL   []byte
	PostBase []byte
}

// NewWALState creates the fixture in a temporary directory.
func NewWALState(t *testing.T) WALState {
	t.Helper()

	p := filepath.Join(t.TempDir(), "app.db")
	db, err := sql.Open("sqlite", p)
	if err != nil {
		t.Fatalf("failed to open fixture database: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	exec := func(q string) {
		t.Helper()
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("fixture statement %q failed: %v", q, err)
		}
	}
	read := func(name string) []byte {
		t.Helper()
		b, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		return b
	}

	exec("PRAGMA journal_mode = WAL")
	exec("PRAGMA wal_autocheckpoint = 0")
	exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)")
	exec("INSERT INTO notes (body) VALUES ('checkpointed')")
	exec("PRAGMA wal_checkpoint(TRUNCATE)")
	exec("INSERT INTO notes (body) VALUES ('only in wal')")

	var s WALState
	s.PreBase = read(p)
	s.PreWAL = read(p + "-wal")
	if len(s.PreWAL) == 0 {
		t.Fatal("fixture WAL is empty; expected uncheckpointed frames")
	}

	exec("PRAGMA wal_checkpoint(TRUNCATE)")
	s.PostBase = read(p)
	return s
}

// Write stores base and, when non-nil, wal at path and path+"-wal".
func Write(t *testing.T, path string, base, wal []byte) {
	t.Helper()
	if err := os.WriteFile(path, base, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	if wal != nil {
		if err := os.WriteFile(path+"-wal", wal, 0o644); err != nil {
			t.Fatalf("failed to write %s-wal: %v", path, err)
		}
	}
}

// CountNotes counts the rows of "notes" through db.
func CountNotes(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&n); err != nil {
		t.Fatalf("failed to count notes: %v", err)
	}
	return n
}
