package snapshots

import (
	"io"
	"log/slog"
	"time"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/store"
	"github.com/blackwell-systems/droiddb/internal/transfer"
)

// Local names the files of one snapshot on the local disk: the base file at
// Base plus its "-wal" and "-shm" sidecars.
type Local struct {
	Base string
}

// WALPath returns the path of the snapshot's WAL file.
func (l Local) WALPath() string {
	return l.Base + adb.WALSuffix
}

// SHMPath returns the path of the snapshot's shared-memory file.
func (l Local) SHMPath() string {
	return l.Base + adb.SHMSuffix
}

// Paths returns all three paths, sidecars first.
func (l Local) Paths() []string {
	return []string{l.WALPath(), l.SHMPath(), l.Base}
}

// Result describes one extraction. Files lists the transfer outcomes in the
// order the files were pulled.
type Result struct {
	Token     string             `json:"token,omitempty"`
	DeviceID  string             `json:"device_id"`
	Package   string             `json:"package"`
	Database  string             `json:"database"`
	LocalPath string             `json:"local_path"`
	Pathway   access.Pathway     `json:"pathway"`
	Files     []transfer.Outcome `json:"files"`
	CreatedAt time.Time          `json:"created_at"`
	Duration  time.Duration      `json:"duration"`
}

// Base returns the outcome of the base database file, or nil if the
// extraction stopped before reaching it.
func (r *Result) Base() *transfer.Outcome {
	for i := range r.Files {
		if r.Files[i].Name == r.Database {
			return &r.Files[i]
		}
	}
	return nil
}

// Size returns the total bytes written locally.
func (r *Result) Size() int64 {
	var n int64
	for _, f := range r.Files {
		if f.OK() {
			n += f.Size
		}
	}
	return n
}

// Manager extracts database snapshots from devices and tracks them in the
// session store.
type Manager struct {
	resolver    *access.Resolver
	strategy    *transfer.Strategy
	store       *store.Store
	snapshotDir string
	logger      *slog.Logger
}

// New creates a new snapshot Manager. st may be nil, in which case
// extractions are not recorded.
func New(resolver *access.Resolver, strategy *transfer.Strategy, st *store.Store, snapshotDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		resolver:    resolver,
		strategy:    strategy,
		store:       st,
		snapshotDir: snapshotDir,
		logger:      logger,
	}
}

// Dir returns the directory holding snapshot files.
func (m *Manager) Dir() string {
	return m.snapshotDir
}
