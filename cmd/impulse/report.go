package main

import (
	"fmt"
	"strings"

	"github.com/akmonengine/impulse/solver"
	"github.com/charmbracelet/lipgloss"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// renderReport formats the last solver report of a run
func renderReport(name string, steps int, r solver.Report, energy float64) string {
	rows := []struct {
		label string
		value string
		warn  bool
	}{
		{"contacts", fmt.Sprintf("%d", r.Contacts), false},
		{"dropped", fmt.Sprintf("%d", r.Dropped), r.Dropped > 0},
		{"bodies", fmt.Sprintf("%d", r.Bodies), false},
		{"stage", r.Stage.String(), false},
		{"gs iterations", fmt.Sprintf("%d", r.GSIterations), false},
		{"gs bounces", fmt.Sprintf("%d", r.GSBounces), false},
		{"lcp iterations", fmt.Sprintf("%d", r.LCPIterations), false},
		{"lcp rejected", fmt.Sprintf("%t", r.LCPRejected), r.LCPRejected},
		{"unprojected", fmt.Sprintf("%d", r.Unprojected), false},
		{"levels", fmt.Sprintf("%d", r.MaxLevel), false},
		{"graph loops", fmt.Sprintf("%d", r.Loops), r.Loops > 0},
		{"solver energy", fmt.Sprintf("%.4g → %.4g", r.Ebefore, r.Eafter), false},
		{"world energy", fmt.Sprintf("%.6g J", energy), false},
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s · %d steps", name, steps)))
	b.WriteString("\n")
	for i, row := range rows {
		style := valueStyle
		if row.warn {
			style = warnStyle
		}
		b.WriteString(labelStyle.Render(row.label))
		b.WriteString(style.Render(row.value))
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}

	return panelStyle.Render(b.String())
}
