// Package localdb opens pulled snapshots for reading.
//
// A snapshot is assembled from files copied one by one, not through SQLite's
// own backup path, so nothing guarantees that the WAL has been folded into
// the base file. Open forces a full checkpoint before the handle is returned
// so every later read sees base plus WAL as one state.
package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"
)

// ErrMissing is returned when the snapshot's base file does not exist.
var ErrMissing = errors.New("snapshot database file does not exist")

// DB is an open snapshot.
type DB struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Checkpoint is the result row of "PRAGMA wal_checkpoint".
type Checkpoint struct {
	Busy         int
	LogFrames    int
	Checkpointed int
}

// Open opens the snapshot at path and checkpoints its WAL. A failed
// checkpoint is logged and ignored: databases without a WAL, or not in WAL
// mode at all, are the common case.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrMissing)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	d := &DB{db: db, path: path, logger: logger}
	if cp, err := d.Checkpoint(ctx); err != nil {
		logger.Debug("checkpoint on open failed", "path", path, "err", err)
	} else {
		logger.Debug("checkpoint on open",
			"path", path,
			"busy", cp.Busy,
			"log_frames", cp.LogFrames,
			"checkpointed", cp.Checkpointed,
		)
	}
	return d, nil
}

// Checkpoint runs a FULL WAL checkpoint. For a database not in WAL mode it
// reports -1 frames.
func (d *DB) Checkpoint(ctx context.Context) (Checkpoint, error) {
	var cp Checkpoint
	err := d.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(FULL)").Scan(&cp.Busy, &cp.LogFrames, &cp.Checkpointed)
	if err != nil {
		return cp, fmt.Errorf("wal checkpoint: %w", err)
	}
	return cp, nil
}

// Path returns the snapshot's base file path.
func (d *DB) Path() string {
	return d.path
}

// SQL returns the underlying connection pool for callers issuing their own
// statements.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
