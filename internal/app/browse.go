package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/localdb"
	"github.com/blackwell-systems/droiddb/internal/output"
)

var (
	tableLimit  int
	tableOffset int
	tableSchema bool

	tablesCmd = &cobra.Command{
		Use:   "tables <token>",
		Short: "List the tables of a pulled snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runTables,
	}

	tableCmd = &cobra.Command{
		Use:   "table <token> <table>",
		Short: "Show rows of a table",
		Long: `Show one page of a table's rows together with the total row count.
Use --schema to describe the columns instead.`,
		Example: `  droiddb table <token> notes
  droiddb table <token> notes --limit 20 --offset 40`,
		Args: cobra.ExactArgs(2),
		RunE: runTable,
	}

	queryCmd = &cobra.Command{
		Use:   "query <token> <sql>",
		Short: "Run a SQL statement against a snapshot",
		Long: `Run one SQL statement against the local snapshot. Statements that return
rows print them; other statements print the number of rows affected.

Writes change only the local copy, never the device.`,
		Example: `  droiddb query <token> "SELECT id, body FROM notes ORDER BY id DESC"`,
		Args:    cobra.MinimumNArgs(2),
		RunE:    runQuery,
	}
)

func init() {
	tableCmd.Flags().IntVar(&tableLimit, "limit", localdb.DefaultLimit, "rows per page")
	tableCmd.Flags().IntVar(&tableOffset, "offset", 0, "rows to skip")
	tableCmd.Flags().BoolVar(&tableSchema, "schema", false, "describe columns instead of showing rows")
}

// openSnapshot looks up a session token and opens its reconciled snapshot.
func openSnapshot(ctx context.Context, token string) (*localdb.DB, error) {
	logger := cliLogger()
	mgr, st, err := openManager(logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	local, err := mgr.Lookup(token)
	if err != nil {
		return nil, fmt.Errorf("unknown session %s: %w", token, err)
	}
	return localdb.Open(ctx, local.Base, logger)
}

func runTables(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	db, err := openSnapshot(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := db.Tables(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		if tables == nil {
			tables = []string{}
		}
		return printJSON(cmd.OutOrStdout(), tables)
	}
	if len(tables) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tables.")
		return nil
	}
	for _, t := range tables {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	return nil
}

func runTable(cmd *cobra.Command, args []string) error {
	if tableLimit < 0 || tableOffset < 0 {
		return fmt.Errorf("--limit and --offset must not be negative")
	}

	ctx := commandContext(cmd)
	db, err := openSnapshot(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	if tableSchema {
		cols, err := db.Columns(ctx, args[1])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), cols)
		}
		rows := make([]map[string]any, 0, len(cols))
		for _, c := range cols {
			rows = append(rows, map[string]any{"name": c.Name, "type": c.Type, "notnull": c.NotNull, "pk": c.PrimaryKey})
		}
		fmt.Fprint(cmd.OutOrStdout(), output.RenderRows([]string{"name", "type", "notnull", "pk"}, rows))
		return nil
	}

	page, err := db.TableData(ctx, args[1], tableLimit, tableOffset)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), page)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderRows(page.Columns, page.Rows))
	fmt.Fprintf(cmd.OutOrStdout(), "rows %d-%d of %d\n", page.Offset+1, page.Offset+len(page.Rows), page.Total)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	db, err := openSnapshot(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.Query(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), res)
	}
	if res.Columns != nil {
		fmt.Fprint(cmd.OutOrStdout(), output.RenderRows(res.Columns, res.Rows))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}
