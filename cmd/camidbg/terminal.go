package main

import (
	"os"

	"golang.org/x/term"
)

// isInteractiveTerminal reports whether stdout is a real terminal; the -i
// TUI refuses to start when it is not.
//
// Grounded on wasi/preview2/cli/terminal.go's isTerminal check, repurposed
// here to gate the TUI itself rather than WASI's terminal-stdout handle.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
