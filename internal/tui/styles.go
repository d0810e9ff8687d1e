package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	TopBar    lipgloss.Style
	Title     lipgloss.Style
	RoleUser  lipgloss.Style
	RoleAI    lipgloss.Style
	RoleSys   lipgloss.Style
	ErrorLine lipgloss.Style
	Streaming lipgloss.Style
	InputBox  lipgloss.Style
	Footer    lipgloss.Style
	Spinner   lipgloss.Style
}

func newStyles() styles {
	accent := lipgloss.AdaptiveColor{Light: "#5a4fcf", Dark: "#8b7cf6"}
	muted := lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}
	errCol := lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}
	border := lipgloss.AdaptiveColor{Light: "#d1d5db", Dark: "#374151"}

	return styles{
		TopBar:    lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Title:     lipgloss.NewStyle().Foreground(accent).Bold(true),
		RoleUser:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		RoleAI:    lipgloss.NewStyle().Bold(true),
		RoleSys:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		ErrorLine: lipgloss.NewStyle().Foreground(errCol),
		Streaming: lipgloss.NewStyle().Foreground(muted),
		InputBox:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1),
		Footer:    lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		Spinner:   lipgloss.NewStyle().Foreground(accent),
	}
}
