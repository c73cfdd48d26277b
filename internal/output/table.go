// Package output renders droiddb results for the terminal.
//
// Tables are plain text padded with spaces. Status words are colored when
// stdout is a terminal and NO_COLOR is unset. Progress indicators are safe
// for use from several goroutines.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/snapshots"
	"github.com/blackwell-systems/droiddb/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// maxCellWidth bounds query result cells.
const maxCellWidth = 40

// IsColorEnabled reports whether ANSI colors should be emitted.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// pad left-aligns s in width columns, coloring only the text so the padding
// stays aligned.
func pad(color, s string, width int) string {
	fill := ""
	if n := width - len(s); n > 0 {
		fill = strings.Repeat(" ", n)
	}
	if color == "" {
		return s + fill
	}
	return colorize(color, s) + fill
}

func rule(n int) string {
	return strings.Repeat("─", n) + "\n"
}

// RenderDeviceTable lists devices with their connection state. The root
// column is shown only when withRoot is set, since HasRoot is meaningless
// unless probed.
func RenderDeviceTable(devices []adb.Device, withRoot bool) string {
	if len(devices) == 0 {
		return "No devices attached.\n"
	}

	var sb strings.Builder
	if withRoot {
		fmt.Fprintf(&sb, "%-24s %-14s %s\n", "Device", "Status", "Root")
		sb.WriteString(rule(46))
	} else {
		fmt.Fprintf(&sb, "%-24s %s\n", "Device", "Status")
		sb.WriteString(rule(40))
	}

	for _, d := range devices {
		status := string(d.Status)
		if d.RawStatus != "" {
			status = d.RawStatus
		}
		color := colorYellow
		if d.Ready() {
			color = colorGreen
		}

		fmt.Fprintf(&sb, "%-24s ", truncate(d.ID, 24))
		if !withRoot {
			sb.WriteString(colorize(color, status) + "\n")
			continue
		}
		sb.WriteString(pad(color, status, 14) + " ")
		switch {
		case !d.Ready():
			sb.WriteString(colorize(colorGray, "-"))
		case d.HasRoot:
			sb.WriteString(colorize(colorGreen, "yes"))
		default:
			sb.WriteString("no")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderPackageTable lists packages sorted by name.
func RenderPackageTable(packages []adb.Package) string {
	if len(packages) == 0 {
		return "No packages found.\n"
	}

	sorted := make([]adb.Package, len(packages))
	copy(sorted, packages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-50s %s\n", "Package", "Debuggable")
	sb.WriteString(rule(62))
	for _, p := range sorted {
		fmt.Fprintf(&sb, "%-50s %s\n", truncate(p.Name, 50), formatDebuggable(p.Debuggable))
	}
	fmt.Fprintf(&sb, "\n%d packages\n", len(sorted))
	return sb.String()
}

func formatDebuggable(d adb.Debuggable) string {
	switch d {
	case adb.DebuggableYes:
		return colorize(colorGreen, "yes")
	case adb.DebuggableNo:
		return "no"
	default:
		return colorize(colorGray, "?")
	}
}

// RenderDatabaseList lists database names one per line.
func RenderDatabaseList(pkg string, dbs []string) string {
	if len(dbs) == 0 {
		return fmt.Sprintf("No databases found for %s.\n", pkg)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Databases of %s:\n", pkg)
	for _, db := range dbs {
		sb.WriteString("  " + db + "\n")
	}
	return sb.String()
}

// RenderExtraction summarizes one pull: where the snapshot lives and what
// happened to each file, in transfer order.
func RenderExtraction(res *snapshots.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Token:    %s\n", res.Token)
	fmt.Fprintf(&sb, "Source:   %s %s/%s\n", res.DeviceID, res.Package, res.Database)
	fmt.Fprintf(&sb, "Pathway:  %s\n", res.Pathway)
	fmt.Fprintf(&sb, "Local:    %s\n", res.LocalPath)
	fmt.Fprintf(&sb, "Size:     %s in %s\n\n", formatSize(res.Size()), res.Duration.Round(time.Millisecond))

	fmt.Fprintf(&sb, "%-28s %-8s %-15s %s\n", "File", "Result", "Technique", "Size")
	sb.WriteString(rule(64))
	for _, f := range res.Files {
		if f.OK() {
			fmt.Fprintf(&sb, "%-28s %s %-15s %s\n",
				truncate(f.Name, 28), pad(colorGreen, "ok", 8), f.Technique, formatSize(f.Size))
			continue
		}
		fmt.Fprintf(&sb, "%-28s %s %-15s %s\n",
			truncate(f.Name, 28), pad(colorGray, "skipped", 8), "-", "-")
	}
	return sb.String()
}

// RenderSessionTable lists recorded snapshots, newest first.
func RenderSessionTable(sessions []*store.Extraction) string {
	if len(sessions) == 0 {
		return "No snapshots recorded.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-36s %-16s %-28s %-8s %-9s %s\n",
		"Token", "Device", "Database", "Pathway", "Size", "Created")
	sb.WriteString(rule(116))
	for _, s := range sessions {
		fmt.Fprintf(&sb, "%-36s %-16s %-28s %-8s %-9s %s\n",
			s.Token,
			truncate(s.DeviceID, 16),
			truncate(s.Package+"/"+s.Database, 28),
			s.Pathway,
			formatSize(s.SizeBytes),
			formatRelativeTime(s.CreatedAt))
	}
	return sb.String()
}

// RenderRows renders query or table rows in column order. Values are shown
// as SQLite would print them; NULL is shown explicitly.
func RenderRows(columns []string, rows []map[string]any) string {
	if len(columns) == 0 {
		return "(no columns)\n"
	}

	widths := make([]int, len(columns))
	cells := make([][]string, len(rows))
	for i, c := range columns {
		widths[i] = len(c)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i, c := range columns {
			v := truncate(formatValue(row[c]), maxCellWidth)
			cells[r][i] = v
			widths[i] = max(widths[i], len(v))
		}
	}

	var sb strings.Builder
	writeLine := func(vals []string) {
		for i, v := range vals {
			if i > 0 {
				sb.WriteString("  ")
			}
			if i == len(vals)-1 {
				sb.WriteString(v)
			} else {
				sb.WriteString(pad("", v, widths[i]))
			}
		}
		sb.WriteString("\n")
	}

	writeLine(columns)
	total := 2 * (len(columns) - 1)
	for _, w := range widths {
		total += w
	}
	sb.WriteString(rule(total))
	for _, row := range cells {
		writeLine(row)
	}
	fmt.Fprintf(&sb, "(%d rows)\n", len(rows))
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("<blob %s>", humanize.IBytes(uint64(len(x))))
	case string:
		return strings.ReplaceAll(x, "\n", `\n`)
	default:
		return fmt.Sprint(x)
	}
}

// formatSize converts bytes to a human-readable size.
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime returns "2 hours ago" style text, or "never" for the
// zero time.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// truncate shortens s to maxLen bytes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
