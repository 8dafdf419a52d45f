package main

import (
	"github.com/charmbracelet/lipgloss"

	"llmhub/internal/dashboard"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))
	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

var variantColors = map[dashboard.Variant]lipgloss.Color{
	dashboard.VariantSuccess:     lipgloss.Color("42"),
	dashboard.VariantWarning:     lipgloss.Color("214"),
	dashboard.VariantDestructive: lipgloss.Color("196"),
	dashboard.VariantOutline:     lipgloss.Color("245"),
}

func badge(b dashboard.Badge) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(variantColors[b.Variant]).
		Render("[" + b.Label + "]")
}
