// Package adbtest provides an in-memory Android device that answers the
// bridge commands issued by droiddb. It emulates enough of the device shell
// (id, su, run-as, cp, chmod, mkdir, rm, ls, base64, pull) and of the sandbox rules
// to exercise access resolution and file transfer without hardware.
package adbtest

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/blackwell-systems/droiddb/internal/adb"
)

// Response is a canned answer for one exact command line.
type Response struct {
	Output string
	// Stderr, when non-empty, makes the command fail with exit status 1.
	Stderr string
}

// Device is a fake device reachable through the Runner interface.
type Device struct {
	ID string

	// ShellRoot makes the plain adb shell run as uid 0 (emulator images).
	ShellRoot bool
	// SuRoot makes "su" available.
	SuRoot bool
	// Debuggable lists packages that run-as accepts.
	Debuggable map[string]bool
	// RunAsErrorsOnStdout makes run-as refusals exit 0 with the message on
	// stdout, as some shells do.
	RunAsErrorsOnStdout bool
	// ZeroBytePull makes "adb pull" produce an empty local file.
	ZeroBytePull bool
	// ChmodDenied makes every chmod fail, as on emulated storage that has no
	// permission bits.
	ChmodDenied bool
	// NoCacheDir makes /data/data/<pkg>/cache absent until a mkdir creates it.
	NoCacheDir bool
	// CRLF makes text output use \r\n line endings.
	CRLF bool
	// LineWidth wraps base64 output; zero means 76 columns.
	LineWidth int

	// Responses short-circuits exact command lines (args joined by spaces).
	Responses map[string]Response

	// OnCopy runs after a "cp" has read src. It may mutate files through
	// SetFile, which is how tests simulate a concurrent checkpoint.
	OnCopy func(src string)

	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	calls []string
}

// New returns a device with the given serial and no files.
func New(id string) *Device {
	return &Device{
		ID:         id,
		Debuggable: make(map[string]bool),
		Responses:  make(map[string]Response),
		files:      make(map[string][]byte),
		dirs:       make(map[string]bool),
	}
}

// SetFile creates or replaces a remote file.
func (d *Device) SetFile(p string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[p] = append([]byte(nil), data...)
}

// RemoveFile deletes a remote file.
func (d *Device) RemoveFile(p string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, p)
}

// File returns a remote file's contents.
func (d *Device) File(p string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[p]
	return b, ok
}

// Calls returns every command line run so far, in order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// ResetCalls clears the command log.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Run implements adb.Runner.
func (d *Device) Run(ctx context.Context, deviceID string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &adb.ChannelError{Args: args, Err: err}
	}
	line := strings.Join(args, " ")

	d.mu.Lock()
	d.calls = append(d.calls, line)
	if resp, ok := d.Responses[line]; ok {
		d.mu.Unlock()
		return d.finish(args, resp.Output, resp.Stderr, exitFor(resp.Stderr))
	}
	if deviceID != "" && deviceID != d.ID {
		d.mu.Unlock()
		return d.finish(args, "", fmt.Sprintf("adb: device '%s' not found", deviceID), 1)
	}

	var (
		out, errOut string
		code        int
		copied      []string
	)
	switch {
	case len(args) == 0:
		errOut, code = "adb: usage: no command", 1
	case args[0] == "devices":
		out = "List of devices attached\n" + d.ID + "\tdevice"
	case args[0] == "pull" && len(args) == 3:
		out, errOut, code = d.pull(args[1], args[2])
	case args[0] == "shell":
		out, errOut, code, copied = d.execLine(d.shellUID(), strings.Join(args[1:], " "))
	default:
		errOut, code = "adb: unknown command "+args[0], 1
	}
	hook := d.OnCopy
	d.mu.Unlock()

	if hook != nil {
		for _, src := range copied {
			hook(src)
		}
	}
	return d.finish(args, out, errOut, code)
}

func exitFor(stderr string) int {
	if stderr != "" {
		return 1
	}
	return 0
}

func (d *Device) finish(args []string, out, errOut string, code int) (string, error) {
	if d.CRLF {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	if code != 0 {
		return "", &adb.ChannelError{Args: args, ExitCode: code, Stderr: strings.TrimSpace(errOut)}
	}
	return strings.TrimSpace(out), nil
}

func (d *Device) shellUID() string {
	if d.ShellRoot {
		return "root"
	}
	return "shell"
}

// execLine runs a "&&"-joined command line. Must be called with d.mu held.
func (d *Device) execLine(uid, line string) (out, errOut string, code int, copied []string) {
	all, err := shellquote.Split(line)
	if err != nil {
		return "", "/system/bin/sh: syntax error: " + err.Error(), 2, nil
	}
	var outs []string
	for _, words := range splitAnd(all) {
		o, e, c, cp := d.exec(uid, words)
		copied = append(copied, cp...)
		if o != "" {
			outs = append(outs, o)
		}
		if c != 0 {
			return strings.Join(outs, "\n"), e, c, copied
		}
	}
	return strings.Join(outs, "\n"), "", 0, copied
}

func (d *Device) exec(uid string, words []string) (out, errOut string, code int, copied []string) {
	if len(words) == 0 {
		return "", "", 0, nil
	}
	switch words[0] {
	case "id":
		return identity(uid), "", 0, nil

	case "su":
		if !d.SuRoot {
			return "", "/system/bin/sh: su: inaccessible or not found", 127, nil
		}
		rest := words[1:]
		switch {
		case len(rest) >= 2 && rest[0] == "-c":
			return d.execLine("root", strings.Join(rest[1:], " "))
		case len(rest) >= 1 && rest[0] == "0":
			return d.exec("root", rest[1:])
		default:
			return "", "su: usage: su [-c command | uid command]", 1, nil
		}

	case "sh":
		if len(words) >= 3 && words[1] == "-c" {
			return d.execLine(uid, strings.Join(words[2:], " "))
		}
		return "", "sh: interactive shell not supported", 1, nil

	case "run-as":
		if len(words) < 3 {
			return "", "run-as: usage: run-as <package-name> [<command>]", 1, nil
		}
		pkg := words[1]
		if !d.Debuggable[pkg] {
			msg := "run-as: package not debuggable: " + pkg
			if d.RunAsErrorsOnStdout {
				return msg, "", 0, nil
			}
			return "", msg, 1, nil
		}
		return d.exec("app:"+pkg, words[2:])

	case "cp":
		if len(words) != 3 {
			return "", "cp: usage: cp SRC DEST", 1, nil
		}
		src, dst := words[1], words[2]
		data, msg := d.read(uid, src)
		if msg != "" {
			return "", "cp: " + src + ": " + msg, 1, nil
		}
		if msg := d.writable(uid, dst); msg != "" {
			return "", "cp: " + dst + ": " + msg, 1, nil
		}
		if d.NoCacheDir && path.Base(path.Dir(dst)) == "cache" && !d.dirs[path.Dir(dst)] {
			return "", "cp: " + dst + ": No such file or directory", 1, nil
		}
		d.files[dst] = append([]byte(nil), data...)
		return "", "", 0, []string{src}

	case "chmod":
		if d.ChmodDenied {
			return "", "chmod: " + words[len(words)-1] + ": Operation not permitted", 1, nil
		}
		return "", "", 0, nil

	case "mkdir":
		for _, p := range words[1:] {
			if strings.HasPrefix(p, "-") {
				continue
			}
			if msg := d.permitted(uid, p); msg != "" {
				return "", "mkdir: " + p + ": " + msg, 1, nil
			}
			d.dirs[strings.TrimSuffix(p, "/")] = true
		}
		return "", "", 0, nil

	case "rm":
		for _, p := range words[1:] {
			if strings.HasPrefix(p, "-") {
				continue
			}
			delete(d.files, p)
		}
		return "", "", 0, nil

	case "ls":
		if len(words) < 2 {
			return "", "ls: usage", 1, nil
		}
		dir := strings.TrimSuffix(words[len(words)-1], "/")
		if msg := d.permitted(uid, dir); msg != "" {
			return "", "ls: " + dir + ": " + msg, 1, nil
		}
		var names []string
		for p := range d.files {
			if path.Dir(p) == dir {
				names = append(names, path.Base(p))
			}
		}
		if len(names) == 0 {
			return "", "ls: " + dir + ": No such file or directory", 1, nil
		}
		sort.Strings(names)
		return strings.Join(names, "\n"), "", 0, nil

	case "base64":
		if len(words) != 2 {
			return "", "base64: usage: base64 FILE", 1, nil
		}
		data, msg := d.read(uid, words[1])
		if msg != "" {
			return "", "base64: " + words[1] + ": " + msg, 1, nil
		}
		return d.wrap(base64.StdEncoding.EncodeToString(data)), "", 0, nil

	default:
		return "", "/system/bin/sh: " + words[0] + ": not found", 127, nil
	}
}

func (d *Device) pull(remote, local string) (out, errOut string, code int) {
	data, msg := d.read("shell", remote)
	if msg != "" {
		return "", fmt.Sprintf("adb: error: failed to stat remote object '%s': %s", remote, msg), 1
	}
	if d.ZeroBytePull {
		data = nil
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", "adb: error: cannot create '" + local + "': " + err.Error(), 1
	}
	return remote + ": 1 file pulled, 0 skipped.", "", 0
}

func (d *Device) wrap(s string) string {
	width := d.LineWidth
	if width <= 0 {
		width = 76
	}
	var sb strings.Builder
	for len(s) > width {
		sb.WriteString(s[:width])
		sb.WriteString("\n")
		s = s[width:]
	}
	sb.WriteString(s)
	return sb.String()
}

func (d *Device) read(uid, p string) ([]byte, string) {
	if msg := d.permitted(uid, p); msg != "" {
		return nil, msg
	}
	data, ok := d.files[p]
	if !ok {
		return nil, "No such file or directory"
	}
	return data, ""
}

func (d *Device) writable(uid, p string) string {
	return d.permitted(uid, path.Dir(p))
}

// permitted applies the per-package sandbox: /data/data/<pkg> is visible to
// root and to the package's own run-as context only.
func (d *Device) permitted(uid, p string) string {
	if !strings.HasPrefix(p, "/data/data/") || uid == "root" {
		return ""
	}
	pkg := strings.SplitN(strings.TrimPrefix(p, "/data/data/"), "/", 2)[0]
	if uid == "app:"+pkg {
		return ""
	}
	return "Permission denied"
}

func identity(uid string) string {
	switch {
	case uid == "root":
		return "uid=0(root) gid=0(root) groups=0(root) context=u:r:su:s0"
	case uid == "shell":
		return "uid=2000(shell) gid=2000(shell) groups=2000(shell) context=u:r:shell:s0"
	default:
		return "uid=10123(u0_a123) gid=10123(u0_a123) groups=10123(u0_a123) context=u:r:untrusted_app:s0"
	}
}

func splitAnd(words []string) [][]string {
	var (
		cmds [][]string
		cur  []string
	)
	for _, w := range words {
		if w == "&&" {
			cmds = append(cmds, cur)
			cur = nil
			continue
		}
		cur = append(cur, w)
	}
	return append(cmds, cur)
}
