package printer

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	dim    = color.New(color.Faint)
)

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	green.Printf("✓ %s", fmt.Sprintf(format, a...))
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	yellow.Printf("⚠ %s", fmt.Sprintf(format, a...))
}

// Event prints a live session event line in cyan, used by the watch command.
func Event(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Muted prints secondary detail (timestamps, ids) in a dimmed style.
func Muted(format string, a ...any) {
	dim.Printf(format, a...)
}

// OwnerBadge formats an owner name for inline display; unowned objects get
// a dimmed placeholder.
func OwnerBadge(ownerName string) string {
	if ownerName == "" {
		return dim.Sprint("unclaimed")
	}
	return yellow.Sprintf("held by %s", ownerName)
}

// Error prints a formatted error message with title, explanation, and
// suggestions to stderr, and returns a simple error for Cobra (which has
// SilenceErrors set).
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		for _, suggestion := range suggestions {
			fmt.Fprintf(os.Stderr, "  %s\n", suggestion)
		}
	}

	return fmt.Errorf("%s", title)
}

// Println prints a plain message (for output that doesn't need coloring).
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring).
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}
