package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/output"
)

var (
	packagesFilter string
	packagesProbe  bool

	packagesCmd = &cobra.Command{
		Use:   "packages <device>",
		Short: "List installed packages",
		Long: `List the packages installed on a device, sorted by name.

Filters:
  all         every package (default)
  thirdParty  user-installed packages ("pm list packages -3")
  system      system packages ("pm list packages -s")

The debuggable state of each package is unknown until probed. --probe runs
the run-as check for every listed package, which takes one adb round trip
per package.`,
		Example: `  droiddb packages emulator-5554
  droiddb packages emulator-5554 --filter thirdParty --probe`,
		Args: cobra.ExactArgs(1),
		RunE: runPackages,
	}

	debuggableCmd = &cobra.Command{
		Use:   "debuggable <device> <package>",
		Short: "Check whether run-as works for a package",
		Args:  cobra.ExactArgs(2),
		RunE:  runDebuggable,
	}
)

func init() {
	packagesCmd.Flags().StringVarP(&packagesFilter, "filter", "f", "all", "package filter: all, thirdParty or system")
	packagesCmd.Flags().BoolVar(&packagesProbe, "probe", false, "probe each package for run-as access")
}

func runPackages(cmd *cobra.Command, args []string) error {
	filter, err := adb.ParsePackageFilter(packagesFilter)
	if err != nil {
		return err
	}
	resolver, err := openResolver()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	device := args[0]
	pkgs, err := adb.ListPackages(ctx, resolver.Runner(), device, filter)
	if err != nil {
		return err
	}

	if packagesProbe && len(pkgs) > 0 {
		bar := output.NewProgress(len(pkgs), "Probing packages")
		bar.SetWriter(cmd.ErrOrStderr())
		for i := range pkgs {
			pkgs[i].Debuggable = adb.DebuggableFrom(resolver.ProbeDebuggable(ctx, device, pkgs[i].Name))
			bar.Increment()
		}
		bar.Finish()
	}

	if jsonOut {
		if pkgs == nil {
			pkgs = []adb.Package{}
		}
		return printJSON(cmd.OutOrStdout(), pkgs)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderPackageTable(pkgs))
	return nil
}

func runDebuggable(cmd *cobra.Command, args []string) error {
	resolver, err := openResolver()
	if err != nil {
		return err
	}
	ok := resolver.ProbeDebuggable(commandContext(cmd), args[0], args[1])

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), map[string]any{"package": args[1], "debuggable": ok})
	}
	if ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is debuggable: run-as access available\n", args[1])
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not debuggable\n", args[1])
	}
	return nil
}
