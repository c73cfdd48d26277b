package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/output"
	"github.com/blackwell-systems/droiddb/internal/transfer"
)

var (
	pullTimeout time.Duration

	pullCmd = &cobra.Command{
		Use:   "pull <device> <package> <database>",
		Short: "Copy a database snapshot to this machine",
		Long: `Copy a database and its WAL and SHM sidecars from the device into a new
snapshot under the temp directory, and record it as a session.

The sidecars are pulled before the database itself so that a checkpoint
running on the device during the pull cannot lose committed rows. Missing
sidecars are normal. Only a failed transfer of the database file fails the
pull.

The printed token names the snapshot in "tables", "table" and "query".
With --json, a failed pull still prints the outcome of every file.`,
		Example: `  droiddb pull emulator-5554 com.example.app app.db
  droiddb pull emulator-5554 com.example.app app.db --timeout 5m --json`,
		Args: cobra.ExactArgs(3),
		RunE: runPull,
	}
)

func init() {
	pullCmd.Flags().DurationVar(&pullTimeout, "timeout", 0, "give up after this long (default from config, 2m)")
}

type pullFailure struct {
	Success bool               `json:"success"`
	Error   string             `json:"error"`
	Pathway string             `json:"pathway"`
	Files   []transfer.Outcome `json:"files"`
}

func runPull(cmd *cobra.Command, args []string) error {
	logger := cliLogger()
	mgr, st, err := openManager(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	timeout := pullTimeout
	if timeout <= 0 {
		timeout = settings().Timeout
	}
	ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
	defer cancel()

	spinner := output.NewSpinner(fmt.Sprintf("Pulling %s from %s", args[2], args[1])).WithTimeout(timeout)
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	res, err := mgr.CreateSnapshot(ctx, args[0], args[1], args[2])
	spinner.Stop()
	if err != nil {
		if jsonOut && res != nil {
			// Per-file outcomes show which technique failed on which file.
			if perr := printJSON(cmd.OutOrStdout(), pullFailure{
				Success: false,
				Error:   err.Error(),
				Pathway: res.Pathway.String(),
				Files:   res.Files,
			}); perr != nil {
				return perr
			}
		}
		return fmt.Errorf("pull failed: %w", err)
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderExtraction(res))
	return nil
}
