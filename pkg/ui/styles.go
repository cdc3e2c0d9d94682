package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme groups the styles the console renders with.
type Theme struct {
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Info      lipgloss.Style
	Heading   lipgloss.Style
	Comment   lipgloss.Style
	Reasoning lipgloss.Style
	Box       lipgloss.Style
}

// DefaultTheme returns the default color theme
func DefaultTheme() Theme {
	return Theme{
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		Info:      lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		Heading:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		Comment:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Reasoning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Faint(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1),
	}
}

// StatusStyle picks the badge color for a plan status.
func (t Theme) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return t.Success
	case "failed":
		return t.Error
	case "in-progress":
		return t.Warning
	case "ready":
		return t.Info
	default:
		return t.Comment
	}
}

// PlainTheme renders text unchanged, for output that is not a terminal.
func PlainTheme() Theme {
	s := lipgloss.NewStyle()
	return Theme{
		Success:   s,
		Error:     s,
		Warning:   s,
		Info:      s,
		Heading:   s,
		Comment:   s,
		Reasoning: s,
		Box:       s,
	}
}
