package main

import "github.com/charmbracelet/lipgloss"

var (
	styleOutcome = map[string]lipgloss.Style{
		"SUCCEEDED":        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		"FAILED":           lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		"CIRCUIT_TRIPPED":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		"NOT_APPROVED":     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		"CRITICAL_FAILURE": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	}
	styleGate = map[string]lipgloss.Style{
		"PASS":    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"WARN":    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"FAIL":    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		"UNKNOWN": lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func renderOutcome(outcome string) string {
	if s, ok := styleOutcome[outcome]; ok {
		return s.Render(outcome)
	}
	return outcome
}

func renderGateStatus(status string) string {
	if s, ok := styleGate[status]; ok {
		return s.Render(status)
	}
	return status
}
