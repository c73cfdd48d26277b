// Package config resolves droiddb settings from the config file, the
// environment and built-in defaults. Command-line flags are applied on top by
// the caller.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Environment variables that override the config file.
const (
	EnvADB      = "DROIDDB_ADB"
	EnvTempDir  = "DROIDDB_TEMP_DIR"
	EnvHTTPAddr = "DROIDDB_HTTP_ADDR"
)

// Defaults.
const (
	DefaultHTTPAddr   = "127.0.0.1:8765"
	DefaultTimeout    = 2 * time.Minute
	DefaultStagingDir = "/sdcard"
)

// Config holds the resolved settings.
type Config struct {
	// ADB is the bridge executable. Empty means auto-detect.
	ADB string
	// TempDir holds local snapshot files.
	TempDir string
	// HTTPAddr is the listen address of "droiddb serve".
	HTTPAddr string
	// Timeout bounds one whole extraction.
	Timeout time.Duration
	// StagingDir is the world-readable device directory used for root pulls.
	StagingDir string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		TempDir:    filepath.Join(os.TempDir(), "droiddb"),
		HTTPAddr:   DefaultHTTPAddr,
		Timeout:    DefaultTimeout,
		StagingDir: DefaultStagingDir,
	}
}

// Dir returns the droiddb config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/droiddb if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "droiddb"), nil
}

// Load reads {dir}/config over the defaults and then applies the
// environment. A missing file is not an error. Malformed lines, unknown keys
// and unparsable values are skipped.
func Load(dir string) (*Config, error) {
	cfg := Default()
	if err := cfg.readFile(filepath.Join(dir, "config")); err != nil {
		return cfg, err
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if value == "" {
			continue
		}
		c.set(key, value)
	}
	return scanner.Err()
}

func (c *Config) set(key, value string) {
	switch key {
	case "adb":
		c.ADB = value
	case "temp_dir":
		c.TempDir = value
	case "http_addr":
		c.HTTPAddr = value
	case "staging_dir":
		c.StagingDir = value
	case "timeout":
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			c.Timeout = d
		}
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvADB); v != "" {
		c.ADB = v
	}
	if v := getenv(EnvTempDir); v != "" {
		c.TempDir = v
	}
	if v := getenv(EnvHTTPAddr); v != "" {
		c.HTTPAddr = v
	}
}

// DataDir returns ~/.droiddb, creating it if needed. It holds the session
// database.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".droiddb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
