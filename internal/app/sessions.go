package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/output"
	"github.com/blackwell-systems/droiddb/internal/store"
)

var (
	sessionsOlderThan time.Duration

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List pulled snapshots",
		Long: `List the snapshots recorded in the session database, newest first.

Snapshots are plain files in the temp directory. Removing one with
"sessions rm" deletes the database file and its sidecars along with the
record.`,
		Args: cobra.NoArgs,
		RunE: runSessions,
	}

	sessionsRmCmd = &cobra.Command{
		Use:   "rm <token>...",
		Short: "Delete snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSessionsRm,
	}

	sessionsCleanupCmd = &cobra.Command{
		Use:     "cleanup",
		Short:   "Delete snapshots older than a given age",
		Example: `  droiddb sessions cleanup --older-than 24h`,
		Args:    cobra.NoArgs,
		RunE:    runSessionsCleanup,
	}
)

func init() {
	sessionsCleanupCmd.Flags().DurationVar(&sessionsOlderThan, "older-than", 7*24*time.Hour, "minimum age of removed snapshots")

	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListExtractions()
	if err != nil {
		return err
	}
	if jsonOut {
		if list == nil {
			list = []*store.Extraction{}
		}
		return printJSON(cmd.OutOrStdout(), list)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderSessionTable(list))
	return nil
}

func runSessionsRm(cmd *cobra.Command, args []string) error {
	mgr, st, err := openManager(cliLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	for _, token := range args {
		if err := mgr.RemoveSnapshot(token); err != nil {
			return fmt.Errorf("failed to remove %s: %w", token, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", token)
	}
	return nil
}

func runSessionsCleanup(cmd *cobra.Command, args []string) error {
	mgr, st, err := openManager(cliLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := mgr.CleanupOlderThan(sessionsOlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d snapshots older than %s\n", n, sessionsOlderThan)
	return nil
}
