package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/output"
)

var (
	devicesProbeRoot bool

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Long: `List the devices known to the adb server with their connection state.

With --root, every device in state "device" is probed for a working su.
Devices are listed fresh on every call; nothing is cached.`,
		Example: `  droiddb devices
  droiddb devices --root --json`,
		Args: cobra.NoArgs,
		RunE: runDevices,
	}

	rootCmd = &cobra.Command{
		Use:   "root <device>",
		Short: "Check whether a device grants root",
		Long: `Probe a device for root by running "id" through each known su syntax in
turn: plain shell, "su -c", "su 0", and "su -c" as a single quoted argument.
The first syntax that reports uid 0 is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: runRoot,
	}
)

func init() {
	devicesCmd.Flags().BoolVar(&devicesProbeRoot, "root", false, "probe each ready device for root")
}

func runDevices(cmd *cobra.Command, args []string) error {
	resolver, err := openResolver()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	devices, err := adb.ListDevices(ctx, resolver.Runner())
	if err != nil {
		return err
	}
	if devicesProbeRoot {
		for i := range devices {
			if devices[i].Ready() {
				devices[i].HasRoot = resolver.ProbeRoot(ctx, devices[i].ID)
			}
		}
	}

	if jsonOut {
		if devices == nil {
			devices = []adb.Device{}
		}
		return printJSON(cmd.OutOrStdout(), devices)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderDeviceTable(devices, devicesProbeRoot))
	return nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	resolver, err := openResolver()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	m := resolver.RootMethod(ctx, args[0])

	if jsonOut {
		body := map[string]any{"device": args[0], "root": m != nil}
		if m != nil {
			body["method"] = m.Name
		}
		return printJSON(cmd.OutOrStdout(), body)
	}
	if m == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: no root (tried %d su syntaxes)\n", args[0], len(access.RootMethods))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: root via %q\n", args[0], m.Name)
	return nil
}
