package ui

import "golang.org/x/term"

// defaultWidth is assumed when the terminal size cannot be queried,
// such as when output is piped.
const defaultWidth = 80

// IsTTY reports whether fd is attached to a terminal.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// TermWidth returns the width of the terminal behind fd in columns,
// falling back to defaultWidth when the size cannot be determined.
func TermWidth(fd uintptr) int {
	cols, _, err := term.GetSize(int(fd))
	if err != nil || cols <= 0 {
		return defaultWidth
	}
	return cols
}
