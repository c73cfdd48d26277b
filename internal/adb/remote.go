package adb

import (
	"path"
	"strings"
)

// Sidecar suffixes of a SQLite database file.
const (
	WALSuffix     = "-wal"
	SHMSuffix     = "-shm"
	JournalSuffix = "-journal"
)

// IsSidecar reports whether name is a journal, WAL or shared-memory file
// rather than a base database file.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, WALSuffix) ||
		strings.HasSuffix(name, SHMSuffix) ||
		strings.HasSuffix(name, JournalSuffix)
}

// RemoteFile names one file in a package's database directory on a device.
type RemoteFile struct {
	DeviceID string
	Package  string
	Name     string
}

// DataDir returns the package's private data directory.
func DataDir(pkg string) string {
	return path.Join("/data/data", pkg)
}

// DatabaseDir returns the package's database directory.
func DatabaseDir(pkg string) string {
	return path.Join(DataDir(pkg), "databases")
}

// Path returns the absolute remote path of f.
func (f RemoteFile) Path() string {
	return path.Join(DatabaseDir(f.Package), f.Name)
}

// CachePath returns a location inside the package's own cache directory,
// writable from its run-as context.
func (f RemoteFile) CachePath() string {
	return path.Join(DataDir(f.Package), "cache", "droiddb-"+f.Name)
}

// Primary reports whether f is a base database file.
func (f RemoteFile) Primary() bool {
	return !IsSidecar(f.Name)
}

func (f RemoteFile) String() string {
	return f.DeviceID + ":" + f.Path()
}
