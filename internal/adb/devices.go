package adb

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ListDevices returns the devices known to the bridge.
func ListDevices(ctx context.Context, r Runner) ([]Device, error) {
	out, err := r.Run(ctx, "", "devices")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return parseDevices(out), nil
}

// parseDevices parses "adb devices" output. Example input:
//
//	* daemon not running; starting now at tcp:5037
//	* daemon started successfully
//	List of devices attached
//	emulator-5554	device
//	0123456789ABCDEF	unauthorized
func parseDevices(output string) []Device {
	var devices []Device
	for _, ln := range strings.Split(output, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if strings.HasPrefix(ln, "List of devices") ||
			strings.HasPrefix(ln, "*") ||
			strings.Contains(ln, "adb server") {
			continue
		}
		f := strings.Fields(ln)
		if len(f) < 2 {
			continue
		}
		d := Device{ID: f[0], Status: ParseDeviceStatus(f[1])}
		if d.Status == StatusUnknown {
			d.RawStatus = f[1]
		}
		devices = append(devices, d)
	}
	return devices
}

// ListPackages returns the packages installed on a device, sorted by name.
// Every package is returned with an unknown debuggable state.
func ListPackages(ctx context.Context, r Runner, deviceID string, filter PackageFilter) ([]Package, error) {
	args := []string{"shell", "pm", "list", "packages"}
	if flag := filter.flag(); flag != "" {
		args = append(args, flag)
	}
	out, err := r.Run(ctx, deviceID, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages on %s: %w", deviceID, err)
	}

	names := parsePackages(out)
	pkgs := make([]Package, 0, len(names))
	for _, name := range names {
		pkgs = append(pkgs, Package{Name: name, Debuggable: DebuggableUnknown})
	}
	return pkgs, nil
}

// parsePackages extracts package names from "pm list packages" output. Lines
// may be "package:<name>" or, with -f, "package:<apk path>=<name>".
func parsePackages(output string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, ln := range strings.Split(output, "\n") {
		ln = strings.TrimSpace(ln)
		if !strings.HasPrefix(ln, "package:") {
			continue
		}
		ln = strings.TrimPrefix(ln, "package:")
		if eq := strings.LastIndex(ln, "="); eq >= 0 && eq+1 < len(ln) {
			ln = ln[eq+1:]
		}
		ln = strings.TrimSpace(ln)
		if ln == "" || seen[ln] {
			continue
		}
		seen[ln] = true
		names = append(names, ln)
	}
	sort.Strings(names)
	return names
}
