package snapshots

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/metrics"
	"github.com/blackwell-systems/droiddb/internal/store"
)

// ErrBaseTransfer is returned when the base database file could not be
// transferred. It is the only condition that fails an extraction.
var ErrBaseTransfer = errors.New("base database file could not be transferred")

// ErrInvalidDatabase is returned for database names that are not plain base
// file names.
var ErrInvalidDatabase = errors.New("invalid database name")

// NewToken returns a fresh local snapshot name.
func NewToken() string {
	return uuid.NewString()
}

// CreateSnapshot extracts a database into a new snapshot under the manager's
// directory and records it in the session store.
func (m *Manager) CreateSnapshot(ctx context.Context, deviceID, pkg, dbName string) (*Result, error) {
	if err := os.MkdirAll(m.snapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	token := NewToken()
	local := Local{Base: filepath.Join(m.snapshotDir, token)}

	res, err := m.Extract(ctx, deviceID, pkg, dbName, local)
	if res != nil {
		res.Token = token
	}
	if err != nil {
		return res, err
	}

	if m.store != nil {
		if err := m.store.RecordExtraction(toRecord(res)); err != nil {
			// A snapshot nobody can look up is garbage.
			discard(local)
			return res, fmt.Errorf("failed to record snapshot: %w", err)
		}
	}
	return res, nil
}

// Extract pulls dbName of pkg from the device into local.
//
// The WAL and SHM sidecars are pulled before the base file. The app may
// checkpoint at any moment; pulling the WAL first means a checkpoint between
// steps leaves both copies of the new pages locally instead of none.
// Sidecar failures are logged and tolerated because most databases have no
// pending log; only a failed base transfer fails the extraction.
func (m *Manager) Extract(ctx context.Context, deviceID, pkg, dbName string, local Local) (*Result, error) {
	start := time.Now()
	res := &Result{
		DeviceID:  deviceID,
		Package:   pkg,
		Database:  dbName,
		LocalPath: local.Base,
		CreatedAt: start,
	}

	if err := validateName(dbName); err != nil {
		return res, err
	}

	// Sidecars from an earlier extraction must never meet a fresh base file.
	if err := discard(local); err != nil {
		return res, fmt.Errorf("failed to discard stale snapshot files: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(local.Base), 0755); err != nil {
		return res, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	a := m.resolver.Resolve(ctx, deviceID, pkg)
	res.Pathway = a.Pathway()
	if res.Pathway == access.PathwayNone {
		m.finish(res, start, false)
		return res, fmt.Errorf("%w: %w", ErrBaseTransfer, access.ErrNoAccess)
	}

	sidecars := []struct{ name, path string }{
		{dbName + adb.WALSuffix, local.WALPath()},
		{dbName + adb.SHMSuffix, local.SHMPath()},
	}
	for _, sc := range sidecars {
		o := m.strategy.Transfer(ctx, a, sc.name, sc.path)
		res.Files = append(res.Files, o)
		if !o.OK() {
			m.logger.Info("sidecar not transferred",
				"device", deviceID,
				"package", pkg,
				"file", sc.name,
				"err", o.Err,
			)
		}
	}

	base := m.strategy.Transfer(ctx, a, dbName, local.Base)
	res.Files = append(res.Files, base)
	if !base.OK() {
		discard(local)
		m.finish(res, start, false)
		return res, fmt.Errorf("%w: %w", ErrBaseTransfer, base.Err)
	}

	m.finish(res, start, true)
	m.logger.Info("snapshot extracted",
		"device", deviceID,
		"package", pkg,
		"database", dbName,
		"pathway", res.Pathway.String(),
		"bytes", res.Size(),
		"duration", res.Duration,
	)
	return res, nil
}

func (m *Manager) finish(res *Result, start time.Time, ok bool) {
	res.Duration = time.Since(start)
	metrics.ExtractionDurationSeconds.Observe(res.Duration.Seconds())
	if ok {
		metrics.ExtractionsTotal.WithLabelValues(metrics.Ok).Inc()
	} else {
		metrics.ExtractionsTotal.WithLabelValues(metrics.Fail).Inc()
	}
}

func validateName(dbName string) error {
	switch {
	case dbName == "", dbName == ".", dbName == "..":
		return fmt.Errorf("%w: %q", ErrInvalidDatabase, dbName)
	case strings.ContainsAny(dbName, "/\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidDatabase, dbName)
	case adb.IsSidecar(dbName):
		return fmt.Errorf("%w: %q is a sidecar file", ErrInvalidDatabase, dbName)
	}
	return nil
}

func toRecord(res *Result) *store.Extraction {
	e := &store.Extraction{
		Token:     res.Token,
		DeviceID:  res.DeviceID,
		Package:   res.Package,
		Database:  res.Database,
		LocalPath: res.LocalPath,
		Pathway:   res.Pathway.String(),
		SizeBytes: res.Size(),
		CreatedAt: res.CreatedAt,
	}
	for _, f := range res.Files {
		rec := store.ExtractionFile{
			Name:      f.Name,
			Technique: f.Technique,
			OK:        f.OK(),
			SizeBytes: f.Size,
		}
		if f.Err != nil {
			rec.Detail = f.Err.Error()
		}
		e.Files = append(e.Files, rec)
	}
	return e
}
