package access

import (
	"strings"

	"github.com/blackwell-systems/droiddb/internal/adb"
)

// RootMethod is one way of running a command as uid 0 on a device shell.
type RootMethod struct {
	Name string
	// Wrap turns a shell command line into bridge arguments.
	Wrap func(line string) []string
}

// RootMethods is the fixed probe order. Devices accept different su
// syntaxes and none is universal, so the first method whose "id" reports
// uid 0 is used for every later root command on that device.
var RootMethods = []RootMethod{
	{
		// adbd already runs as root (emulators, userdebug builds).
		Name: "shell",
		Wrap: func(line string) []string {
			return []string{"shell", line}
		},
	},
	{
		Name: "su -c",
		Wrap: func(line string) []string {
			return []string{"shell", "su", "-c", adb.Quote(line)}
		},
	},
	{
		Name: "su 0",
		Wrap: func(line string) []string {
			if isWord(line) {
				return []string{"shell", "su", "0", line}
			}
			return []string{"shell", "su", "0", "sh", "-c", adb.Quote(line)}
		},
	},
	{
		// One shell argument, for shells that split nested quotes differently.
		Name: "su -c (quoted)",
		Wrap: func(line string) []string {
			return []string{"shell", "su -c '" + strings.ReplaceAll(line, "'", `'\''`) + "'"}
		},
	},
}

// RunAs returns bridge arguments running words inside pkg's run-as context.
func RunAs(pkg string, words ...string) []string {
	args := []string{"shell", "run-as", adb.Quote(pkg)}
	for _, w := range words {
		args = append(args, adb.Quote(w))
	}
	return args
}

func isWord(line string) bool {
	return line != "" && adb.Quote(line) == line && !strings.ContainsAny(line, " \t")
}

func splitLines(s string) []string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}
