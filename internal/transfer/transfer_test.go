package transfer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb/adbtest"
)

const (
	dev        = "emulator-5554"
	pkg        = "com.example.app"
	remoteBase = "/data/data/com.example.app/databases/app.db"
)

// binary covers every byte value, including \r and \n.
func binary() []byte {
	b := make([]byte, 512)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func resolve(t *testing.T, d *adbtest.Device) access.Access {
	t.Helper()
	a := access.NewResolver(d, nil).Resolve(context.Background(), dev, pkg)
	d.ResetCalls()
	return a
}

func TestTransfer_StagedPull(t *testing.T) {
	d := adbtest.New(dev)
	d.SuRoot = true
	d.SetFile(remoteBase, binary())
	a := resolve(t, d)

	local := filepath.Join(t.TempDir(), "app.db")
	o := New(d, nil).Transfer(context.Background(), a, "app.db", local)
	if !o.OK() {
		t.Fatalf("Transfer() failed: %v", o.Err)
	}
	if o.Technique != StagedPull.Name || o.Size != 512 {
		t.Errorf("outcome = %+v", o)
	}
	got, _ := os.ReadFile(local)
	if !bytes.Equal(got, binary()) {
		t.Error("local file differs from remote file")
	}

	stage := "/sdcard/droiddb-com_example_app-app.db"
	if _, ok := d.File(stage); ok {
		t.Errorf("staged copy %s was not removed", stage)
	}
}

func TestTransfer_StagedPullIgnoresRefusedChmod(t *testing.T) {
	d := adbtest.New(dev)
	d.SuRoot = true
	d.ChmodDenied = true
	d.SetFile(remoteBase, binary())
	a := resolve(t, d)

	local := filepath.Join(t.TempDir(), "app.db")
	o := New(d, nil).Transfer(context.Background(), a, "app.db", local)
	if !o.OK() {
		t.Fatalf("Transfer() failed: %v", o.Err)
	}
	if o.Technique != StagedPull.Name || len(o.Attempts) != 1 {
		t.Errorf("outcome = %+v, want a single staged-pull attempt", o)
	}
	got, _ := os.ReadFile(local)
	if !bytes.Equal(got, binary()) {
		t.Error("local file differs from remote file")
	}
}

func TestTransfer_Base64CreatesCacheDir(t *testing.T) {
	d := adbtest.New(dev)
	d.Debuggable[pkg] = true
	d.NoCacheDir = true
	d.SetFile(remoteBase, binary())
	a := resolve(t, d)

	local := filepath.Join(t.TempDir(), "app.db")
	o := New(d, nil).Transfer(context.Background(), a, "app.db", local)
	if !o.OK() {
		t.Fatalf("Transfer() failed: %v", o.Err)
	}

	calls := d.Calls()
	mkdir := "shell run-as com.example.app mkdir -p /data/data/com.example.app/cache"
	if len(calls) < 2 || calls[0] != mkdir || !strings.Contains(calls[1], " cp ") {
		t.Errorf("expected %q before the cache copy, got %v", mkdir, calls)
	}
}

func TestTransfer_ZeroBytePullFallsBackToBase64(t *testing.T) {
	d := adbtest.New(dev)
	d.SuRoot = true
	d.ZeroBytePull = true
	d.Debuggable[pkg] = true
	d.SetFile(remoteBase, binary())
	a := resolve(t, d)

	local := filepath.Join(t.TempDir(), "app.db")
	o := New(d, nil).Transfer(context.Background(), a, "app.db", local)
	if !o.OK() {
		t.Fatalf("Transfer() failed: %v", o.Err)
	}
	if o.Technique != Base64Stream.Name {
		t.Errorf("technique = %q, want base64-stream", o.Technique)
	}
	if len(o.Attempts) != 2 || !errors.Is(o.Attempts[0].Err(), ErrTransferIncomplete) {
		t.Errorf("attempts = %+v", o.Attempts)
	}
	got, _ := os.ReadFile(local)
	if !bytes.Equal(got, binary()) {
		t.Error("local file differs from remote file")
	}
	if _, ok := d.File("/data/data/com.example.app/cache/droiddb-app.db"); ok {
		t.Error("cache copy was not removed")
	}
}

func TestTransfer_ZeroBytePullWithoutRunAs(t *testing.T) {
	d := adbtest.New(dev)
	d.SuRoot = true
	d.ZeroBytePull = true
	d.SetFile(remoteBase, binary())
	a := resolve(t, d)

	local := filepath.Join(t.TempDir(), "app.db")
	o := New(d, nil).Transfer(context.Background(), a, "app.db", local)
	if o.OK() || !errors.Is(o.Err, ErrTransferIncomplete) {
		t.Fatalf("Transfer() error = %v; want ErrTransferIncomplete", o.Err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("empty local file should have been removed")
	}
}

func TestTransfer_Base64CRLF(t *testing.T) {
	d := adbtest.New(dev)
	d.Debuggable[pkg] = true
	d.CRLF = true
	d.LineWidth = 60
	d.SetFile(remoteBase, binary())
	a := resolve(t, d)

	local := filepath.Join(t.TempDir(), "app.db")
	o := New(d, nil).Transfer(context.Background(), a, "app.db", local)
	if !o.OK() {
		t.Fatalf("Transfer() failed: %v", o.Err)
	}
	got, _ := os.ReadFile(local)
	if !bytes.Equal(got, binary()) {
		t.Error("CRLF-wrapped payload did not round-trip")
	}

	calls := strings.Join(d.Calls(), "\n")
	for _, want := range []string{
		"shell run-as com.example.app cp /data/data/com.example.app/databases/app.db /data/data/com.example.app/cache/droiddb-app.db",
		"shell run-as com.example.app base64 /data/data/com.example.app/cache/droiddb-app.db",
		"shell run-as com.example.app rm -f /data/data/com.example.app/cache/droiddb-app.db",
	} {
		if !strings.Contains(calls, want) {
			t.Errorf("missing command %q in\n%s", want, calls)
		}
	}
}

func TestTransfer_EmptyFiles(t *testing.T) {
	d := adbtest.New(dev)
	d.Debuggable[pkg] = true
	d.SetFile(remoteBase, nil)
	d.SetFile(remoteBase+"-shm", nil)
	a := resolve(t, d)
	s := New(d, nil)
	dir := t.TempDir()

	if o := s.Transfer(context.Background(), a, "app.db", filepath.Join(dir, "app.db")); !errors.Is(o.Err, ErrTransferIncomplete) {
		t.Errorf("empty base file: error = %v; want ErrTransferIncomplete", o.Err)
	}

	shm := filepath.Join(dir, "app.db-shm")
	o := s.Transfer(context.Background(), a, "app.db-shm", shm)
	if !o.OK() {
		t.Fatalf("empty sidecar should transfer: %v", o.Err)
	}
	if info, err := os.Stat(shm); err != nil || info.Size() != 0 {
		t.Errorf("sidecar stat = %v, %v; want empty file", info, err)
	}
}

func TestTransfer_RemoteMissing(t *testing.T) {
	d := adbtest.New(dev)
	d.Debuggable[pkg] = true
	a := resolve(t, d)

	local := filepath.Join(t.TempDir(), "app.db-wal")
	o := New(d, nil).Transfer(context.Background(), a, "app.db-wal", local)
	if !errors.Is(o.Err, ErrRemoteMissing) {
		t.Errorf("Transfer() error = %v; want ErrRemoteMissing", o.Err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("no local file should exist after failure")
	}
}

func TestTransfer_RefusedOnStdout(t *testing.T) {
	d := adbtest.New(dev)
	d.SetFile(remoteBase, binary())
	d.RunAsErrorsOnStdout = true
	a := access.Access{DeviceID: dev, Package: pkg, RunAs: true}

	o := New(d, nil).Transfer(context.Background(), a, "app.db", filepath.Join(t.TempDir(), "app.db"))
	if !errors.Is(o.Err, ErrNotDebuggable) {
		t.Errorf("Transfer() error = %v; want ErrNotDebuggable", o.Err)
	}
}

func TestTransfer_NoTechnique(t *testing.T) {
	d := adbtest.New(dev)
	a := access.Access{DeviceID: dev, Package: pkg}

	o := New(d, nil).Transfer(context.Background(), a, "app.db", filepath.Join(t.TempDir(), "app.db"))
	if !errors.Is(o.Err, ErrNoTechnique) {
		t.Errorf("Transfer() error = %v; want ErrNoTechnique", o.Err)
	}
	if len(d.Calls()) != 0 {
		t.Errorf("no commands expected, got %v", d.Calls())
	}
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"plain", "aGVsbG8=", "hello", false},
		{"wrapped", "aGVs\nbG8=", "hello", false},
		{"crlf", "aGVs\r\nbG8=\r\n", "hello", false},
		{"empty", "", "", false},
		{"malformed", "not base64!", "", true},
		{"truncated", "aGVsbG8", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Errorf("DecodePayload() error = %v; want ErrDecode", err)
				}
				return
			}
			if err != nil || string(got) != tt.want {
				t.Errorf("DecodePayload() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}
