package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))            // dark green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))            // blue
	neutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func printError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, errorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, warningStyle.Render("! "+fmt.Sprintf(format, args...)))
}

func printPending(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, pendingStyle.Render("? "+fmt.Sprintf(format, args...)))
}

// printNeutral renders outcomes that are not failures: declined replace,
// timed out question, user cancel
func printNeutral(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, neutralStyle.Render("- "+fmt.Sprintf(format, args...)))
}

func printHeader(w io.Writer, text string) {
	fmt.Fprintln(w, headerStyle.Render(text))
}
