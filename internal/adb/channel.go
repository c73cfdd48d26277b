package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrBridgeNotFound is returned when no adb executable can be located.
var ErrBridgeNotFound = errors.New("adb executable not found (set --adb or DROIDDB_ADB)")

// Runner executes a single bridge command scoped to one device and returns
// its decoded output. An empty deviceID runs the command unscoped.
//
// Implementations must not retry. A failed command is reported as a
// *ChannelError so callers can decide which alternative to try next.
type Runner interface {
	Run(ctx context.Context, deviceID string, args ...string) (string, error)
}

// ChannelError describes a bridge command that exited non-zero or could not
// be started at all.
type ChannelError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ChannelError) Error() string {
	msg := fmt.Sprintf("adb %s failed", strings.Join(e.Args, " "))
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// FailureText returns the diagnostic text carried by a channel failure, or
// the empty string for any other error.
func FailureText(err error) string {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Stderr
	}
	return ""
}

// Bridge runs commands through a local adb executable.
type Bridge struct {
	Path string
}

// NewBridge returns a Bridge using path, or the auto-detected adb executable
// when path is empty.
func NewBridge(path string) (*Bridge, error) {
	if path == "" {
		path = AutoDetect()
	}
	if path == "" {
		return nil, ErrBridgeNotFound
	}
	return &Bridge{Path: path}, nil
}

// Run executes "<adb> -s <deviceID> <args...>". Stdout is decoded as UTF-8
// with invalid sequences replaced, and surrounding whitespace trimmed.
func (b *Bridge) Run(ctx context.Context, deviceID string, args ...string) (string, error) {
	full := args
	if strings.TrimSpace(deviceID) != "" {
		full = append([]string{"-s", deviceID}, args...)
	}

	cmd := exec.CommandContext(ctx, b.Path, full...)
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		ce := &ChannelError{
			Args:   full,
			Stderr: strings.TrimSpace(Decode(stderr.Bytes())),
			Err:    err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ce.ExitCode = exitErr.ExitCode()
		}
		if ce.Stderr == "" {
			// Some adb builds report shell failures on stdout.
			ce.Stderr = strings.TrimSpace(Decode(stdout.Bytes()))
		}
		return "", ce
	}

	return strings.TrimSpace(Decode(stdout.Bytes())), nil
}

// Decode converts raw command output to text, replacing invalid UTF-8
// sequences rather than failing.
func Decode(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

// AutoDetect looks for adb on PATH, then in the Android SDK locations.
// It returns the empty string if nothing is found.
func AutoDetect() string {
	exe := "adb"
	if runtime.GOOS == "windows" {
		exe = "adb.exe"
	}
	if p, err := exec.LookPath(exe); err == nil {
		return p
	}

	roots := []string{
		os.Getenv("ANDROID_SDK_ROOT"),
		os.Getenv("ANDROID_HOME"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "darwin":
			roots = append(roots, filepath.Join(home, "Library", "Android", "sdk"))
		case "windows":
			roots = append(roots, filepath.Join(home, "AppData", "Local", "Android", "Sdk"))
		default:
			roots = append(roots,
				filepath.Join(home, "Android", "Sdk"),
				filepath.Join(home, "Android", "sdk"),
			)
		}
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		cand := filepath.Join(root, "platform-tools", exe)
		if info, err := os.Stat(cand); err == nil && !info.IsDir() {
			return cand
		}
	}
	return ""
}
