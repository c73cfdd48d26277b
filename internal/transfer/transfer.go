// Package transfer copies single files out of a package's private storage.
//
// Two techniques are tried in order and the first success wins:
//
//   - StagedPull (root): copy into a world-readable staging directory, then
//     "adb pull" the copy as a binary transfer.
//   - Base64Stream (run-as): copy into the package's own cache directory,
//     then read it back through base64 over the text command channel.
//
// A local file that is missing or empty after a staged pull counts as a
// failure so that the run-as fallback still gets its turn.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/metrics"
)

// DefaultStagingDir is world-readable on stock devices and outside every
// package sandbox.
const DefaultStagingDir = "/sdcard"

// cleanupTimeout bounds best-effort remote commands.
const cleanupTimeout = 10 * time.Second

var (
	ErrNotDebuggable      = errors.New("package is not debuggable")
	ErrRemoteMissing      = errors.New("remote file does not exist")
	ErrAccessDenied       = errors.New("remote file is not readable")
	ErrTransferIncomplete = errors.New("local file is missing or empty after transfer")
	ErrDecode             = errors.New("malformed base64 payload")
	ErrNoTechnique        = errors.New("no transfer technique is available for this access")
)

// Technique is one way of moving a remote file to a local path. Run returns
// the number of bytes written locally.
type Technique struct {
	Name      string
	Available func(a access.Access) bool
	Run       func(ctx context.Context, s *Strategy, a access.Access, f adb.RemoteFile, localPath string) (int64, error)
}

// Attempt records one technique's result for one file.
type Attempt struct {
	Technique string `json:"technique"`
	Error     string `json:"error,omitempty"`
	err       error
}

// Err returns the attempt's error.
func (a Attempt) Err() error {
	return a.err
}

// Outcome describes the transfer of one file.
type Outcome struct {
	Name      string    `json:"name"`
	Technique string    `json:"technique,omitempty"`
	Size      int64     `json:"size"`
	Attempts  []Attempt `json:"attempts,omitempty"`
	Err       error     `json:"-"`
}

// OK reports whether the file was transferred.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Strategy transfers files using an ordered list of techniques.
type Strategy struct {
	runner adb.Runner
	logger *slog.Logger

	// StagingDir is the world-readable directory used by StagedPull.
	StagingDir string
	// Techniques are tried in order.
	Techniques []Technique
}

// New returns a Strategy with the default technique order.
func New(r adb.Runner, logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Strategy{
		runner:     r,
		logger:     logger,
		StagingDir: DefaultStagingDir,
		Techniques: []Technique{StagedPull, Base64Stream},
	}
}

// Transfer copies the file name from the package's database directory to
// localPath. On failure no file is left at localPath.
func (s *Strategy) Transfer(ctx context.Context, a access.Access, name, localPath string) Outcome {
	f := adb.RemoteFile{DeviceID: a.DeviceID, Package: a.Package, Name: name}
	o := Outcome{Name: name}

	for _, t := range s.Techniques {
		if !t.Available(a) {
			continue
		}
		size, err := t.Run(ctx, s, a, f, localPath)
		if err == nil {
			metrics.TransfersTotal.WithLabelValues(t.Name, metrics.Ok).Inc()
			metrics.TransferBytesTotal.WithLabelValues(t.Name).Add(float64(size))
			s.logger.Debug("file transferred", "file", f.String(), "technique", t.Name, "bytes", size)
			o.Technique = t.Name
			o.Size = size
			o.Attempts = append(o.Attempts, Attempt{Technique: t.Name})
			o.Err = nil
			return o
		}

		metrics.TransfersTotal.WithLabelValues(t.Name, metrics.Fail).Inc()
		s.logger.Debug("transfer technique failed", "file", f.String(), "technique", t.Name, "err", err)
		o.Attempts = append(o.Attempts, Attempt{Technique: t.Name, Error: err.Error(), err: err})
		o.Err = err
		removeLocal(localPath)
	}

	if len(o.Attempts) == 0 {
		o.Err = ErrNoTechnique
	}
	o.Err = fmt.Errorf("transfer of %s failed: %w", name, o.Err)
	return o
}

// run executes one bridge command for the device in a.
func (s *Strategy) run(ctx context.Context, a access.Access, args ...string) (string, error) {
	return s.runner.Run(ctx, a.DeviceID, args...)
}

// bestEffort runs a remote cleanup command whose failure is logged and
// ignored. It still runs after the caller's context has expired.
func (s *Strategy) bestEffort(ctx context.Context, a access.Access, step string, args ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := s.run(ctx, a, args...); err != nil {
		s.logger.Debug("remote cleanup failed", "step", step, "device", a.DeviceID, "args", args, "err", err)
	}
}

// classify maps device text to a transfer error, or nil if the text carries
// no known failure marker.
func classify(text string) error {
	switch {
	case adb.RunAsRefused(text):
		return ErrNotDebuggable
	case adb.MarkerNoSuchFile.In(text):
		return ErrRemoteMissing
	case adb.MarkerPermissionDenied.In(text):
		return ErrAccessDenied
	}
	return nil
}

// commandError wraps a channel failure, attaching the classified cause when
// the diagnostic text is recognizable.
func commandError(step string, err error) error {
	if cause := classify(adb.FailureText(err)); cause != nil {
		return fmt.Errorf("%s: %w (%v)", step, cause, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func localSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrTransferIncomplete
		}
		return 0, err
	}
	return info.Size(), nil
}

// removeLocal drops whatever a failed technique left behind.
func removeLocal(p string) {
	_ = os.Remove(p)
}
