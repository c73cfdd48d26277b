package watcher

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/store"
)

// DefaultSweepInterval is how often recorded sessions are checked against
// the files on disk.
const DefaultSweepInterval = 5 * time.Minute

// Watcher drops sessions whose snapshot files vanish from the snapshot
// directory.
type Watcher struct {
	store  *store.Store
	dir    string
	logger *slog.Logger

	// SweepInterval overrides DefaultSweepInterval. Set it before Start.
	SweepInterval time.Duration

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Watcher for dir. A nil logger discards diagnostics.
func New(st *store.Store, dir string, logger *slog.Logger) (*Watcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		store:         st,
		dir:           filepath.Clean(dir),
		logger:        logger,
		SweepInterval: DefaultSweepInterval,
		stopCh:        make(chan struct{}),
	}, nil
}

// Start sweeps once, then watches the directory until Stop is called.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if _, err := w.Sweep(); err != nil {
		w.logger.Warn("initial session sweep failed", "err", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.handleGone(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "dir", w.dir, "err", err)
		case <-ticker.C:
			if _, err := w.Sweep(); err != nil {
				w.logger.Warn("session sweep failed", "err", err)
			}
		case <-w.stopCh:
			return
		}
	}
}

// handleGone reacts to one removed or renamed path. Sidecar events are
// ignored; only the base file defines a snapshot.
func (w *Watcher) handleGone(path string) {
	if adb.IsSidecar(path) {
		return
	}
	if _, err := os.Stat(path); err == nil {
		// Recreated before we got here.
		return
	}

	n, err := w.store.DeleteByPath(path)
	if err != nil {
		w.logger.Warn("failed to drop session", "path", path, "err", err)
		return
	}
	if n > 0 {
		removeSidecars(path)
		w.logger.Info("snapshot file removed, session dropped", "path", path)
	}
}

// Sweep deletes every session whose base file no longer exists and returns
// how many were deleted.
func (w *Watcher) Sweep() (int, error) {
	sessions, err := w.store.ListExtractions()
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			return 0, nil
		}
		return 0, err
	}

	dropped := 0
	for _, s := range sessions {
		if _, err := os.Stat(s.LocalPath); !os.IsNotExist(err) {
			continue
		}
		if err := w.store.DeleteExtraction(s.Token); err != nil && !errors.Is(err, store.ErrNotFound) {
			return dropped, fmt.Errorf("failed to drop session %s: %w", s.Token, err)
		}
		removeSidecars(s.LocalPath)
		dropped++
	}
	if dropped > 0 {
		w.logger.Info("dropped sessions with missing files", "count", dropped)
	}
	return dropped, nil
}

func removeSidecars(base string) {
	for _, suffix := range []string{adb.WALSuffix, adb.SHMSuffix} {
		_ = os.Remove(base + suffix)
	}
}
