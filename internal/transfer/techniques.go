package transfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb"
)

// StagedPull copies the file to the staging directory as root, tries to make
// it world-readable and pulls it as binary. The staged copy is always removed.
var StagedPull = Technique{
	Name: "staged-pull",
	Available: func(a access.Access) bool {
		return a.Root != nil
	},
	Run: stagedPull,
}

// Base64Stream copies the file into the package's cache inside its run-as
// context, then captures it as base64 text. Reading a private copy avoids
// racing a live process that still holds the original open.
var Base64Stream = Technique{
	Name: "base64-stream",
	Available: func(a access.Access) bool {
		return a.RunAs
	},
	Run: base64Stream,
}

func stagedPull(ctx context.Context, s *Strategy, a access.Access, f adb.RemoteFile, localPath string) (int64, error) {
	stage := path.Join(s.StagingDir, stagingName(f))
	defer s.bestEffort(ctx, a, "remove staged copy", "shell", "rm", "-f", adb.Quote(stage))

	out, err := s.run(ctx, a, a.Root.Wrap(adb.ShellLine("cp", f.Path(), stage))...)
	if err != nil {
		return 0, commandError("staging copy", err)
	}
	if cause := classify(out); cause != nil {
		return 0, fmt.Errorf("staging copy: %w", cause)
	}
	// Emulated storage may refuse chmod and still serve the copy; the size
	// check after the pull decides.
	if _, err := s.run(ctx, a, a.Root.Wrap(adb.ShellLine("chmod", "644", stage))...); err != nil {
		s.logger.Debug("chmod of staged copy failed", "file", f.String(), "err", err)
	}

	if _, err := s.run(ctx, a, "pull", stage, localPath); err != nil {
		return 0, commandError("pull", err)
	}

	size, err := localSize(localPath)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("pulled %s: %w", f.Name, ErrTransferIncomplete)
	}
	return size, nil
}

func base64Stream(ctx context.Context, s *Strategy, a access.Access, f adb.RemoteFile, localPath string) (int64, error) {
	cache := f.CachePath()

	// Apps that never touched their cache have no cache directory.
	out, err := s.run(ctx, a, access.RunAs(a.Package, "mkdir", "-p", path.Dir(cache))...)
	if err != nil {
		return 0, commandError("cache directory", err)
	}
	if cause := classify(out); cause != nil {
		return 0, fmt.Errorf("cache directory: %w", cause)
	}

	out, err = s.run(ctx, a, access.RunAs(a.Package, "cp", f.Path(), cache)...)
	if err != nil {
		return 0, commandError("cache copy", err)
	}
	if cause := classify(out); cause != nil {
		return 0, fmt.Errorf("cache copy: %w", cause)
	}
	defer s.bestEffort(ctx, a, "remove cache copy", access.RunAs(a.Package, "rm", "-f", cache)...)

	payload, err := s.run(ctx, a, access.RunAs(a.Package, "base64", cache)...)
	if err != nil {
		return 0, commandError("base64 read", err)
	}
	if adb.AnyIn(payload, adb.MarkerNotDebuggable, adb.MarkerUnknownPackage, adb.MarkerNoSuchFile) {
		return 0, fmt.Errorf("base64 read: %w", classify(payload))
	}

	data, err := DecodePayload(payload)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 && f.Primary() {
		// Sidecars may legitimately be empty; a base database file may not.
		return 0, fmt.Errorf("empty payload for %s: %w", f.Name, ErrTransferIncomplete)
	}

	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return int64(len(data)), nil
}

// DecodePayload decodes base64 text captured over the command channel.
// Line breaks added by the encoder or by line-ending translation are
// removed first.
func DecodePayload(payload string) ([]byte, error) {
	clean := strings.NewReplacer("\r", "", "\n", "").Replace(payload)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}

// stagingName keeps staged copies of different packages apart.
func stagingName(f adb.RemoteFile) string {
	return "droiddb-" + strings.ReplaceAll(f.Package, ".", "_") + "-" + f.Name
}
