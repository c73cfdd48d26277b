package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/output"
)

var databasesCmd = &cobra.Command{
	Use:   "databases <device> <package>",
	Short: "List a package's databases",
	Long: `List the database files in /data/data/<package>/databases, read through
root or run-as. Journal, WAL and SHM sidecar files are left out.

An error is returned when the device is not rooted and the package is not
debuggable. A package without a databases directory has no databases.`,
	Example: `  droiddb databases emulator-5554 com.example.app`,
	Args:    cobra.ExactArgs(2),
	RunE:    runDatabases,
}

func runDatabases(cmd *cobra.Command, args []string) error {
	resolver, err := openResolver()
	if err != nil {
		return err
	}
	dbs, err := resolver.ListDatabases(commandContext(cmd), args[0], args[1])
	if err != nil {
		return err
	}

	if jsonOut {
		if dbs == nil {
			dbs = []string{}
		}
		return printJSON(cmd.OutOrStdout(), dbs)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderDatabaseList(args[1], dbs))
	return nil
}
