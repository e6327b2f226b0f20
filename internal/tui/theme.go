package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header    lipgloss.Style
	panel     lipgloss.Style
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	popup     lipgloss.Style
	popupDim  lipgloss.Style
	badge     lipgloss.Style
	status    lipgloss.Style
	errorLine lipgloss.Style
	help      lipgloss.Style
	input     lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#01cdfe")
	warm := lipgloss.Color("#ff71ce")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		title:     lipgloss.NewStyle().Foreground(mint).Bold(true),
		user:      lipgloss.NewStyle().Foreground(warm).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(mint).Bold(true),
		popup: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(warm).
			Padding(0, 1),
		popupDim: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Foreground(muted).
			Padding(0, 1),
		badge:     lipgloss.NewStyle().Foreground(warm).Bold(true),
		status:    lipgloss.NewStyle().Foreground(accent),
		errorLine: lipgloss.NewStyle().Foreground(warm).Bold(true),
		help:      lipgloss.NewStyle().Foreground(muted),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
	}
}
