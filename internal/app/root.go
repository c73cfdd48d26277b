package app

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	dbPath  string
	adbPath string
	tempDir string
	verbose bool
	jsonOut bool

	// RootCmd is the root command for droiddb
	RootCmd = &cobra.Command{
		Use:   "droiddb",
		Short: "Pull and browse SQLite databases from Android apps",
		Long: `droiddb copies the SQLite databases of an installed Android app to your
machine and lets you browse them, through the adb bridge.

A package's private storage is reached through root (su) when the device
allows it, or through run-as when the app is debuggable. The write-ahead log
is pulled together with the database so that recent writes are not lost.

Examples:
  # List attached devices and whether they are rooted
  droiddb devices --root

  # Find debuggable third-party apps
  droiddb packages emulator-5554 --filter thirdParty --probe

  # Pull a database and look inside
  droiddb databases emulator-5554 com.example.app
  droiddb pull emulator-5554 com.example.app app.db
  droiddb tables <token>
  droiddb query <token> "SELECT * FROM notes LIMIT 5"

  # Serve the same operations over HTTP
  droiddb serve --addr 127.0.0.1:8765`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadSettings,
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "session database path (default: ~/.droiddb/droiddb.db)")
	RootCmd.PersistentFlags().StringVar(&adbPath, "adb", "", "adb executable (default: auto-detect)")
	RootCmd.PersistentFlags().StringVar(&tempDir, "temp-dir", "", "directory for pulled snapshots")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log diagnostics to stderr")
	RootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(devicesCmd)
	RootCmd.AddCommand(rootCmd)
	RootCmd.AddCommand(packagesCmd)
	RootCmd.AddCommand(debuggableCmd)
	RootCmd.AddCommand(databasesCmd)
	RootCmd.AddCommand(pullCmd)
	RootCmd.AddCommand(tablesCmd)
	RootCmd.AddCommand(tableCmd)
	RootCmd.AddCommand(queryCmd)
	RootCmd.AddCommand(sessionsCmd)
	RootCmd.AddCommand(serveCmd)
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return RootCmd.ExecuteContext(ctx)
}
