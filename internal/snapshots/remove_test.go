package snapshots

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/blackwell-systems/droiddb/internal/store"
)

func TestLookup_Unknown(t *testing.T) {
	m := newManager(t, debuggableDevice(), newStore(t))
	if _, err := m.Lookup("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Lookup() error = %v; want ErrNotFound", err)
	}
}

func TestLookup_FilesGone(t *testing.T) {
	dev := debuggableDevice()
	dev.SetFile(remoteBase, []byte("base"))
	m := newManager(t, dev, newStore(t))

	res, err := m.CreateSnapshot(context.Background(), testDevice, testPackage, testDB)
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}
	if err := os.Remove(res.LocalPath); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Lookup(res.Token); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Lookup() error = %v; want ErrNotFound", err)
	}
}

func TestRemoveSnapshot(t *testing.T) {
	dev := debuggableDevice()
	dev.SetFile(remoteBase, []byte("base"))
	dev.SetFile(remoteWAL, []byte("wal"))
	m := newManager(t, dev, newStore(t))

	res, err := m.CreateSnapshot(context.Background(), testDevice, testPackage, testDB)
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}
	if err := m.RemoveSnapshot(res.Token); err != nil {
		t.Fatalf("RemoveSnapshot() failed: %v", err)
	}

	local := Local{Base: res.LocalPath}
	for _, p := range local.Paths() {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should be gone", p)
		}
	}
	if err := m.RemoveSnapshot(res.Token); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second RemoveSnapshot() error = %v; want ErrNotFound", err)
	}
}

func TestCleanupOlderThan(t *testing.T) {
	dev := debuggableDevice()
	dev.SetFile(remoteBase, []byte("base"))
	m := newManager(t, dev, newStore(t))

	if _, err := m.CreateSnapshot(context.Background(), testDevice, testPackage, testDB); err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}

	n, err := m.CleanupOlderThan(time.Hour)
	if err != nil || n != 0 {
		t.Errorf("CleanupOlderThan(1h) = %d, %v; want 0, nil", n, err)
	}

	n, err = m.CleanupOlderThan(-time.Hour)
	if err != nil || n != 1 {
		t.Errorf("CleanupOlderThan(-1h) = %d, %v; want 1, nil", n, err)
	}
}

func TestNoStore(t *testing.T) {
	m := newManager(t, debuggableDevice(), nil)
	if _, err := m.ListSnapshots(); !errors.Is(err, ErrNoStore) {
		t.Errorf("ListSnapshots() error = %v; want ErrNoStore", err)
	}
	if _, err := m.Lookup("x"); !errors.Is(err, ErrNoStore) {
		t.Errorf("Lookup() error = %v; want ErrNoStore", err)
	}
}
