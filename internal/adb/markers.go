package adb

import "strings"

// Marker is a recognizable fragment of remote shell output. The device's
// wording is not under our control, so each marker keeps every known variant
// verbatim.
type Marker []string

var (
	// MarkerRootUID is printed by "id" when the shell runs as uid 0.
	MarkerRootUID = Marker{"uid=0(root)"}

	// MarkerUID is printed by any successful "id".
	MarkerUID = Marker{"uid="}

	// MarkerNotDebuggable covers run-as wording across Android releases:
	// "run-as: package not debuggable: <pkg>" and
	// "run-as: package '<pkg>' is not debuggable".
	MarkerNotDebuggable = Marker{"package not debuggable", "is not debuggable"}

	// MarkerUnknownPackage is printed by run-as for packages that are not installed.
	MarkerUnknownPackage = Marker{"unknown package"}

	MarkerNoSuchFile = Marker{"No such file"}

	MarkerPermissionDenied = Marker{"Permission denied"}
)

// In reports whether any variant of m occurs in text.
func (m Marker) In(text string) bool {
	for _, v := range m {
		if strings.Contains(text, v) {
			return true
		}
	}
	return false
}

// AnyIn reports whether any of the markers occur in text.
func AnyIn(text string, markers ...Marker) bool {
	for _, m := range markers {
		if m.In(text) {
			return true
		}
	}
	return false
}

// RunAsRefused reports whether text shows that the run-as context could not
// be entered for the package.
func RunAsRefused(text string) bool {
	return AnyIn(text, MarkerNotDebuggable, MarkerUnknownPackage)
}

// AccessFailed reports whether text carries a path-level failure: the file is
// missing or unreadable under the current identity.
func AccessFailed(text string) bool {
	return AnyIn(text, MarkerNoSuchFile, MarkerPermissionDenied)
}
