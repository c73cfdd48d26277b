package adb

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
)

func TestParseDevices(t *testing.T) {
	output := `* daemon not running; starting now at tcp:5037
* daemon started successfully
List of devices attached
emulator-5554	device
0123456789ABCDEF	unauthorized
192.168.1.20:5555	offline
R58M12ABCDE	recovery
`
	devices := parseDevices(output)
	if len(devices) != 4 {
		t.Fatalf("expected 4 devices, got %d: %+v", len(devices), devices)
	}

	tests := []struct {
		id     string
		status DeviceStatus
		raw    string
	}{
		{"emulator-5554", StatusDevice, ""},
		{"0123456789ABCDEF", StatusUnauthorized, ""},
		{"192.168.1.20:5555", StatusOffline, ""},
		{"R58M12ABCDE", StatusUnknown, "recovery"},
	}
	for i, tt := range tests {
		d := devices[i]
		if d.ID != tt.id || d.Status != tt.status || d.RawStatus != tt.raw {
			t.Errorf("device %d = %+v, want id=%s status=%s raw=%q", i, d, tt.id, tt.status, tt.raw)
		}
	}
	if !devices[0].Ready() || devices[1].Ready() {
		t.Error("only the device in state 'device' should be ready")
	}
}

func TestParseDevices_Empty(t *testing.T) {
	if got := parseDevices("List of devices attached\n\n"); len(got) != 0 {
		t.Errorf("expected no devices, got %+v", got)
	}
}

func TestParsePackages(t *testing.T) {
	output := "package:com.example.b\r\npackage:/data/app/base.apk=com.example.a\ngarbage line\npackage:com.example.b\npackage:\n"
	got := parsePackages(output)
	want := []string{"com.example.a", "com.example.b"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("parsePackages() = %v, want %v", got, want)
	}
}

type cannedRunner struct {
	calls  [][]string
	output string
	err    error
}

func (c *cannedRunner) Run(ctx context.Context, deviceID string, args ...string) (string, error) {
	c.calls = append(c.calls, append([]string{deviceID}, args...))
	return c.output, c.err
}

func TestListPackages_Filter(t *testing.T) {
	tests := []struct {
		filter PackageFilter
		want   string
	}{
		{FilterAll, "emulator-5554 shell pm list packages"},
		{FilterThirdParty, "emulator-5554 shell pm list packages -3"},
		{FilterSystem, "emulator-5554 shell pm list packages -s"},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			r := &cannedRunner{output: "package:com.example.app"}
			pkgs, err := ListPackages(context.Background(), r, "emulator-5554", tt.filter)
			if err != nil {
				t.Fatalf("ListPackages() failed: %v", err)
			}
			if got := strings.Join(r.calls[0], " "); got != tt.want {
				t.Errorf("command = %q, want %q", got, tt.want)
			}
			if len(pkgs) != 1 || pkgs[0].Debuggable != DebuggableUnknown {
				t.Errorf("unexpected packages: %+v", pkgs)
			}
		})
	}
}

func TestListDevices_Error(t *testing.T) {
	r := &cannedRunner{err: &ChannelError{Args: []string{"devices"}, ExitCode: 1, Stderr: "boom"}}
	if _, err := ListDevices(context.Background(), r); err == nil {
		t.Fatal("expected error")
	}
	if len(r.calls[0]) != 2 || r.calls[0][0] != "" {
		t.Errorf("devices must run unscoped, got %v", r.calls[0])
	}
}

func TestParsePackageFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    PackageFilter
		wantErr bool
	}{
		{"", FilterAll, false},
		{"all", FilterAll, false},
		{"thirdParty", FilterThirdParty, false},
		{"third-party", FilterThirdParty, false},
		{"user", FilterThirdParty, false},
		{"system", FilterSystem, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePackageFilter(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePackageFilter(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestDebuggableJSON(t *testing.T) {
	b, err := json.Marshal([]Package{
		{Name: "a", Debuggable: DebuggableYes},
		{Name: "b", Debuggable: DebuggableNo},
		{Name: "c"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"name":"a","debuggable":true},{"name":"b","debuggable":false},{"name":"c","debuggable":null}]`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}

	var pkgs []Package
	if err := json.Unmarshal(b, &pkgs); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if pkgs[0].Debuggable != DebuggableYes || pkgs[1].Debuggable != DebuggableNo || pkgs[2].Debuggable != DebuggableUnknown {
		t.Errorf("Unmarshal() = %+v", pkgs)
	}
}

func TestMarkers(t *testing.T) {
	tests := []struct {
		text      string
		refused   bool
		failed    bool
		rootUID   bool
		hasAnyUID bool
	}{
		{"run-as: package not debuggable: com.example.app", true, false, false, false},
		{"run-as: package 'com.example.app' is not debuggable", true, false, false, false},
		{"run-as: unknown package: com.example.gone", true, false, false, false},
		{"ls: /data/data/x/databases: No such file or directory", false, true, false, false},
		{"cp: /data/data/x: Permission denied", false, true, false, false},
		{"uid=0(root) gid=0(root)", false, false, true, true},
		{"uid=2000(shell) gid=2000(shell)", false, false, false, true},
	}
	for _, tt := range tests {
		if got := RunAsRefused(tt.text); got != tt.refused {
			t.Errorf("RunAsRefused(%q) = %v", tt.text, got)
		}
		if got := AccessFailed(tt.text); got != tt.failed {
			t.Errorf("AccessFailed(%q) = %v", tt.text, got)
		}
		if got := MarkerRootUID.In(tt.text); got != tt.rootUID {
			t.Errorf("MarkerRootUID.In(%q) = %v", tt.text, got)
		}
		if got := MarkerUID.In(tt.text); got != tt.hasAnyUID {
			t.Errorf("MarkerUID.In(%q) = %v", tt.text, got)
		}
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"id", "id"},
		{"/data/data/com.example.app/databases/app.db", "/data/data/com.example.app/databases/app.db"},
		{"", "''"},
		{"my db.sqlite", "'my db.sqlite'"},
		{"it's", `'it'"'"'s'`},
		{"a && b", "'a && b'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if got := ShellLine("cp", "a b", "c"); got != "cp 'a b' c" {
		t.Errorf("ShellLine() = %s", got)
	}
}

func TestShellLine_SplitsBack(t *testing.T) {
	words := []string{"cp", "/data/data/com.example.app/databases/it's.db", "my db", "", "$HOME", "a&&b", `back\slash`}
	got, err := shellquote.Split(ShellLine(words...))
	if err != nil {
		t.Fatalf("Split(ShellLine()) failed: %v", err)
	}
	if strings.Join(got, "|") != strings.Join(words, "|") || len(got) != len(words) {
		t.Errorf("Split(ShellLine()) = %q, want %q", got, words)
	}
}

func TestRemoteFile(t *testing.T) {
	f := RemoteFile{DeviceID: "emulator-5554", Package: "com.example.app", Name: "app.db-wal"}
	if f.Path() != "/data/data/com.example.app/databases/app.db-wal" {
		t.Errorf("Path() = %s", f.Path())
	}
	if f.CachePath() != "/data/data/com.example.app/cache/droiddb-app.db-wal" {
		t.Errorf("CachePath() = %s", f.CachePath())
	}
	if f.Primary() {
		t.Error("WAL file should not be primary")
	}
	for name, want := range map[string]bool{"app.db": false, "app.db-wal": true, "app.db-shm": true, "app.db-journal": true} {
		if IsSidecar(name) != want {
			t.Errorf("IsSidecar(%q) = %v", name, !want)
		}
	}
}

func TestDecode_ReplacesInvalidUTF8(t *testing.T) {
	if got := Decode([]byte("ok\xffdone")); got != "ok�done" {
		t.Errorf("Decode() = %q", got)
	}
}

func fakeBridge(t *testing.T, script string) *Bridge {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script bridge requires a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	b, err := NewBridge(p)
	if err != nil {
		t.Fatalf("NewBridge() failed: %v", err)
	}
	return b
}

func TestBridge_ScopesToDevice(t *testing.T) {
	b := fakeBridge(t, `echo "$@"`)

	out, err := b.Run(context.Background(), "emulator-5554", "shell", "id")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if out != "-s emulator-5554 shell id" {
		t.Errorf("Run() = %q", out)
	}

	out, err = b.Run(context.Background(), "", "devices")
	if err != nil || out != "devices" {
		t.Errorf("unscoped Run() = %q, %v", out, err)
	}
}

func TestBridge_ChannelError(t *testing.T) {
	b := fakeBridge(t, `echo "run-as: package not debuggable: x" >&2; exit 3`)

	_, err := b.Run(context.Background(), "emulator-5554", "shell", "run-as", "x", "id")
	var ce *ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("Run() error = %v; want *ChannelError", err)
	}
	if ce.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", ce.ExitCode)
	}
	if !RunAsRefused(FailureText(err)) {
		t.Errorf("FailureText() = %q", FailureText(err))
	}
}

func TestBridge_StdoutDiagnostic(t *testing.T) {
	b := fakeBridge(t, `echo "ls: x: No such file or directory"; exit 1`)

	_, err := b.Run(context.Background(), "emulator-5554", "shell", "ls", "x")
	if !MarkerNoSuchFile.In(FailureText(err)) {
		t.Errorf("FailureText() = %q; want stdout diagnostic", FailureText(err))
	}
}
