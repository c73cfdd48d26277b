package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/config"
	"github.com/blackwell-systems/droiddb/internal/snapshots"
	"github.com/blackwell-systems/droiddb/internal/store"
	"github.com/blackwell-systems/droiddb/internal/transfer"
)

var (
	// cfg holds the settings after flags, environment and config file have
	// been merged.
	cfg *config.Config

	// newRunner opens the command channel. Tests replace it with a fake
	// device.
	newRunner = func(path string) (adb.Runner, error) {
		b, err := adb.NewBridge(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
)

// loadSettings merges flags over the config file and environment.
func loadSettings(cmd *cobra.Command, args []string) error {
	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("failed to locate config directory: %w", err)
	}
	c, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if adbPath != "" {
		c.ADB = adbPath
	}
	if tempDir != "" {
		c.TempDir = tempDir
	}
	cfg = c
	return nil
}

func settings() *config.Config {
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}

// getDBPath returns the session database path, using the flag value or default
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	dir, err := config.DataDir()
	if err != nil {
		return "", fmt.Errorf("failed to create droiddb directory: %w", err)
	}
	return filepath.Join(dir, "droiddb.db"), nil
}

// cliLogger writes text diagnostics to stderr, Debug and up with --verbose
// and warnings only otherwise.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openRunner() (adb.Runner, error) {
	r, err := newRunner(settings().ADB)
	if err != nil {
		return nil, fmt.Errorf("failed to open adb bridge: %w", err)
	}
	return r, nil
}

func openResolver() (*access.Resolver, error) {
	r, err := openRunner()
	if err != nil {
		return nil, err
	}
	return access.NewResolver(r, cliLogger()), nil
}

// openStore opens the session database, creating its schema if needed.
func openStore() (*store.Store, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}
	return st, nil
}

// openManager wires a snapshot manager for commands that pull or look up
// snapshots. The caller closes the returned store.
func openManager(logger *slog.Logger) (*snapshots.Manager, *store.Store, error) {
	r, err := openRunner()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	strategy := transfer.New(r, logger)
	strategy.StagingDir = settings().StagingDir
	mgr := snapshots.New(access.NewResolver(r, logger), strategy, st, settings().TempDir, logger)
	return mgr, st, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// commandContext returns the command's context, or a background context for
// commands run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
