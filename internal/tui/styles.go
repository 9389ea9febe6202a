package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Header style for titles and section headers
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	// Success style for positive feedback
	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// Error style for error messages
	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	// Muted style for secondary text
	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

const logoASCII = `
 _ __ ___   ___ _ __ ___   _____   _____  __
| '_ ` + "`" + ` _ \ / _ \ '_ ` + "`" + ` _ \ / _ \ \ / / _ \ \/ /
| | | | | |  __/ | | | | | (_) \ V / (_) >  <
|_| |_| |_|\___|_| |_| |_|\___/ \_/ \___/_/\_\`

// Logo returns the memovox ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
