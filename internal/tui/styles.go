// Package tui renders a live view of a provisioning run in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme colors (Catppuccin Mocha inspired).
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"} // Blue
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"} // Green
	ColorWarning = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"} // Yellow
	ColorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"} // Red
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"} // Overlay0
	ColorText    = lipgloss.AdaptiveColor{Light: "#4c4f69", Dark: "#cdd6f4"} // Text
)

// Styles contains the lipgloss styles of the run view.
type Styles struct {
	Title       lipgloss.Style
	Success     lipgloss.Style
	Warning     lipgloss.Style
	Error       lipgloss.Style
	Info        lipgloss.Style
	Help        lipgloss.Style
	Text        lipgloss.Style
	ProgressBar lipgloss.Style
	Spinner     lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() Styles {
	return Styles{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginBottom(1),
		Success:     lipgloss.NewStyle().Foreground(ColorSuccess),
		Warning:     lipgloss.NewStyle().Foreground(ColorWarning),
		Error:       lipgloss.NewStyle().Foreground(ColorError),
		Info:        lipgloss.NewStyle().Foreground(ColorPrimary),
		Help:        lipgloss.NewStyle().Foreground(ColorMuted),
		Text:        lipgloss.NewStyle().Foreground(ColorText),
		ProgressBar: lipgloss.NewStyle().Foreground(ColorSuccess),
		Spinner:     lipgloss.NewStyle().Foreground(ColorPrimary),
	}
}

// progressBar renders a fixed-width bar for percent in [0, 1].
func progressBar(style lipgloss.Style, width int, percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}
	barWidth := width - 2
	filled := int(percent * float64(barWidth))
	bar := fmt.Sprintf("[%s%s]", strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled))
	return style.Render(bar) + fmt.Sprintf(" %3.0f%%", percent*100)
}
