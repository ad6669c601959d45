// Package render prints interpreter output for terminals: styled event
// lines, JSON lines, live text deltas and glamour-rendered markdown.
//
// NO_COLOR (https://no-color.org/) is respected automatically by lipgloss via
// its color profile detection; when output is not a terminal no escape
// codes are written at all.
package render

import "github.com/charmbracelet/lipgloss"

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorAccent)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
)

// labelStyle picks the style of an event type label.
func labelStyle(t string) lipgloss.Style {
	switch t {
	case "response.completed":
		return TextSuccess
	case "response.failed":
		return TextError
	case "response.incomplete":
		return TextWarning
	case "response.created", "response.in_progress":
		return TextInfo
	default:
		return TextAccent
	}
}
