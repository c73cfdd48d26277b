package adb

import (
	"encoding/json"
	"fmt"
)

// DeviceStatus is the connection state reported by "adb devices".
type DeviceStatus string

const (
	StatusDevice       DeviceStatus = "device"
	StatusUnauthorized DeviceStatus = "unauthorized"
	StatusOffline      DeviceStatus = "offline"
	StatusUnknown      DeviceStatus = "unknown"
)

// ParseDeviceStatus maps the raw state column to a DeviceStatus.
func ParseDeviceStatus(raw string) DeviceStatus {
	switch DeviceStatus(raw) {
	case StatusDevice, StatusUnauthorized, StatusOffline:
		return DeviceStatus(raw)
	default:
		return StatusUnknown
	}
}

// Device is one entry of a device listing. Devices are discovered per call
// and never cached.
type Device struct {
	ID     string       `json:"id"`
	Status DeviceStatus `json:"status"`
	// RawStatus keeps the state text when Status is StatusUnknown.
	RawStatus string `json:"raw_status,omitempty"`
	// HasRoot is only meaningful after a root probe.
	HasRoot bool `json:"root"`
}

// Ready reports whether the device accepts shell commands.
func (d Device) Ready() bool {
	return d.Status == StatusDevice
}

// Debuggable is a three-valued flag: a package's debuggable state is unknown
// until it has been probed.
type Debuggable int

const (
	DebuggableUnknown Debuggable = iota
	DebuggableYes
	DebuggableNo
)

// DebuggableFrom converts a probe result into a known state.
func DebuggableFrom(ok bool) Debuggable {
	if ok {
		return DebuggableYes
	}
	return DebuggableNo
}

func (d Debuggable) String() string {
	switch d {
	case DebuggableYes:
		return "true"
	case DebuggableNo:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes unknown as null.
func (d Debuggable) MarshalJSON() ([]byte, error) {
	switch d {
	case DebuggableYes:
		return []byte("true"), nil
	case DebuggableNo:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false or null.
func (d *Debuggable) UnmarshalJSON(b []byte) error {
	var v *bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid debuggable value %s: %w", b, err)
	}
	if v == nil {
		*d = DebuggableUnknown
		return nil
	}
	*d = DebuggableFrom(*v)
	return nil
}

// Package is an installed application on a device.
type Package struct {
	Name       string     `json:"name"`
	Debuggable Debuggable `json:"debuggable"`
}

// PackageFilter selects which packages a listing returns.
type PackageFilter string

const (
	FilterAll        PackageFilter = "all"
	FilterThirdParty PackageFilter = "thirdParty"
	FilterSystem     PackageFilter = "system"
)

// ParsePackageFilter accepts the filter names used by the CLI and HTTP API.
// The empty string means FilterAll.
func ParsePackageFilter(s string) (PackageFilter, error) {
	switch s {
	case "", string(FilterAll):
		return FilterAll, nil
	case string(FilterThirdParty), "third-party", "user":
		return FilterThirdParty, nil
	case string(FilterSystem):
		return FilterSystem, nil
	default:
		return "", fmt.Errorf("unknown package filter %q (want all, thirdParty or system)", s)
	}
}

func (f PackageFilter) flag() string {
	switch f {
	case FilterThirdParty:
		return "-3"
	case FilterSystem:
		return "-s"
	default:
		return ""
	}
}
