// Package access decides which privilege pathway can read a package's
// private storage on a device.
//
// Two pathways exist. Root escalates the device shell through one of several
// su syntaxes; RunAs impersonates a debuggable package through run-as. Both
// are probed on every resolution because a device can lose su or have an app
// reinstalled between calls.
package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/metrics"
)

// ErrNoAccess is returned when neither root nor run-as can reach a package.
var ErrNoAccess = errors.New("no access pathway: device is not rooted and package is not debuggable")

// Pathway identifies how a package's private files are read.
type Pathway int

const (
	PathwayNone Pathway = iota
	PathwayRoot
	PathwayRunAs
)

func (p Pathway) String() string {
	switch p {
	case PathwayRoot:
		return "root"
	case PathwayRunAs:
		return "run-as"
	default:
		return "none"
	}
}

// MarshalText encodes the pathway name.
func (p Pathway) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Access is the outcome of resolving a (device, package) pair.
type Access struct {
	DeviceID string
	Package  string

	// Root is the su syntax that yielded uid 0, or nil without root.
	Root *RootMethod
	// RunAs reports whether the package's run-as context is usable.
	RunAs bool
}

// Pathway returns the preferred pathway. Root wins because it supports the
// cheaper staged pull.
func (a Access) Pathway() Pathway {
	switch {
	case a.Root != nil:
		return PathwayRoot
	case a.RunAs:
		return PathwayRunAs
	default:
		return PathwayNone
	}
}

// Resolver probes devices for privilege pathways.
type Resolver struct {
	runner adb.Runner
	logger *slog.Logger
}

// NewResolver returns a Resolver issuing commands through r. A nil logger
// discards diagnostics.
func NewResolver(r adb.Runner, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{runner: r, logger: logger}
}

// Runner returns the command channel used by the resolver.
func (r *Resolver) Runner() adb.Runner {
	return r.runner
}

// ProbeRoot reports whether any su syntax yields uid 0 on the device.
func (r *Resolver) ProbeRoot(ctx context.Context, deviceID string) bool {
	return r.RootMethod(ctx, deviceID) != nil
}

// RootMethod walks RootMethods in order and returns the first whose identity
// command reports uid 0, or nil if none does. A nil result is definitive.
func (r *Resolver) RootMethod(ctx context.Context, deviceID string) *RootMethod {
	var outputs []string
	for i := range RootMethods {
		m := &RootMethods[i]
		out, err := r.runner.Run(ctx, deviceID, m.Wrap("id")...)
		if err != nil {
			outputs = append(outputs, adb.FailureText(err))
			continue
		}
		if adb.MarkerRootUID.In(out) {
			r.logger.Debug("root probe succeeded", "device", deviceID, "method", m.Name)
			metrics.RootProbesTotal.WithLabelValues(metrics.Ok).Inc()
			return m
		}
		outputs = append(outputs, out)
	}
	r.logger.Debug("device does not appear to have root", "device", deviceID, "outputs", outputs)
	metrics.RootProbesTotal.WithLabelValues(metrics.Fail).Inc()
	return nil
}

// ProbeDebuggable reports whether commands can run inside the package's
// run-as context. run-as refusals may arrive as ordinary output, so the
// payload is inspected in addition to the exit status.
func (r *Resolver) ProbeDebuggable(ctx context.Context, deviceID, pkg string) bool {
	out, err := r.runner.Run(ctx, deviceID, RunAs(pkg, "id")...)
	if err != nil {
		r.logger.Debug("run-as probe failed", "device", deviceID, "package", pkg, "err", err)
		return false
	}
	if adb.RunAsRefused(out) || !adb.MarkerUID.In(out) {
		r.logger.Debug("package is not debuggable", "device", deviceID, "package", pkg, "output", out)
		return false
	}
	return true
}

// Resolve probes both pathways for a package.
func (r *Resolver) Resolve(ctx context.Context, deviceID, pkg string) Access {
	a := Access{DeviceID: deviceID, Package: pkg}
	a.Root = r.RootMethod(ctx, deviceID)
	a.RunAs = r.ProbeDebuggable(ctx, deviceID, pkg)
	r.logger.Debug("resolved access",
		"device", deviceID,
		"package", pkg,
		"pathway", a.Pathway().String(),
		"run_as", a.RunAs,
	)
	return a
}

// ListDatabases lists the base database files of a package through whichever
// pathway can read its database directory. Journal, WAL and SHM sidecars are
// excluded. A package without a readable database directory has no
// databases; that is not an error.
func (r *Resolver) ListDatabases(ctx context.Context, deviceID, pkg string) ([]string, error) {
	a := r.Resolve(ctx, deviceID, pkg)
	if a.Pathway() == PathwayNone {
		return nil, fmt.Errorf("failed to list databases of %s: %w", pkg, ErrNoAccess)
	}

	dir := adb.DatabaseDir(pkg)
	for _, args := range a.commands("ls", dir) {
		out, err := r.runner.Run(ctx, deviceID, args...)
		if err != nil {
			text := adb.FailureText(err)
			if adb.MarkerNoSuchFile.In(text) {
				// The directory is missing; another pathway will not find it either.
				return nil, nil
			}
			r.logger.Debug("database listing attempt failed", "device", deviceID, "package", pkg, "err", err)
			continue
		}
		if adb.AccessFailed(out) || adb.RunAsRefused(out) {
			r.logger.Debug("database listing refused", "device", deviceID, "package", pkg, "output", out)
			continue
		}
		return FilterDatabases(out), nil
	}
	return nil, nil
}

// FilterDatabases parses an "ls" listing and drops sidecar files.
func FilterDatabases(listing string) []string {
	var dbs []string
	for _, line := range splitLines(listing) {
		if line == "" || adb.IsSidecar(line) {
			continue
		}
		dbs = append(dbs, line)
	}
	return dbs
}

// commands returns the argument lists for running a command through each
// usable pathway, preferred pathway first.
func (a Access) commands(words ...string) [][]string {
	var cmds [][]string
	if a.Root != nil {
		cmds = append(cmds, a.Root.Wrap(adb.ShellLine(words...)))
	}
	if a.RunAs {
		cmds = append(cmds, RunAs(a.Package, words...))
	}
	return cmds
}
