package snapshots

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blackwell-systems/droiddb/internal/store"
)

// ErrNoStore is returned by operations that need the session store when the
// manager was created without one.
var ErrNoStore = errors.New("snapshot manager has no session store")

// Lookup returns the local files of a recorded snapshot. A snapshot whose
// base file has vanished is reported as store.ErrNotFound.
func (m *Manager) Lookup(token string) (Local, error) {
	if m.store == nil {
		return Local{}, ErrNoStore
	}
	e, err := m.store.GetExtraction(token)
	if err != nil {
		return Local{}, err
	}
	local := Local{Base: e.LocalPath}
	if _, err := os.Stat(local.Base); err != nil {
		if os.IsNotExist(err) {
			return Local{}, fmt.Errorf("snapshot %s files are gone: %w", token, store.ErrNotFound)
		}
		return Local{}, err
	}
	return local, nil
}

// ListSnapshots returns all recorded snapshots, newest first.
func (m *Manager) ListSnapshots() ([]*store.Extraction, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	snapshots, err := m.store.ListExtractions()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// RemoveSnapshot deletes a snapshot's local files and its record.
func (m *Manager) RemoveSnapshot(token string) error {
	if m.store == nil {
		return ErrNoStore
	}
	e, err := m.store.GetExtraction(token)
	if err != nil {
		return err
	}
	if err := discard(Local{Base: e.LocalPath}); err != nil {
		return fmt.Errorf("failed to delete snapshot files: %w", err)
	}
	return m.store.DeleteExtraction(token)
}

// CleanupOlderThan removes snapshots created before now minus age and
// returns how many were removed.
func (m *Manager) CleanupOlderThan(age time.Duration) (int, error) {
	snapshots, err := m.ListSnapshots()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-age)
	removed := 0
	for _, s := range snapshots {
		if !s.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.RemoveSnapshot(s.Token); err != nil {
			return removed, fmt.Errorf("failed to remove snapshot %s: %w", s.Token, err)
		}
		removed++
	}
	return removed, nil
}

// discard removes every file of a local snapshot that exists.
func discard(l Local) error {
	var errs []error
	for _, p := range l.Paths() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
