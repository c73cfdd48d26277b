package adb

import "github.com/alessio/shellescape"

// Quote returns s quoted for a POSIX device shell. Words made only of safe
// characters are returned unchanged so simple commands stay readable in logs.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// ShellLine joins words into one shell command line, quoting as needed.
func ShellLine(words ...string) string {
	return shellescape.QuoteCommand(words)
}
