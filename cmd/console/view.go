package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mahyarmirrashed/dsd/internal/notice"
	"github.com/mahyarmirrashed/dsd/internal/rule"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	emptyStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	noticeStyles = map[notice.Severity]lipgloss.Style{
		notice.Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		notice.Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		notice.Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		notice.Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// renderRules draws the rule table.
func renderRules(rules []rule.SyncRule) string {
	if len(rules) == 0 {
		return emptyStyle.Render("No sync rules yet.")
	}

	lines := []string{headerStyle.Render(fmt.Sprintf("%-3s %-4s %-4s %s", "#", "on", "mode", "from -> to"))}
	for i, r := range rules {
		state := idleStyle.Render("off ")
		switch {
		case r.Active():
			state = activeStyle.Render("on  ")
		case r.Enabled:
			state = errorStyle.Render("on  ")
		}
		lines = append(lines, fmt.Sprintf("%-3d %s %-4s %s -> %s", i, state, r.Mode, orDash(r.From), orDash(r.To)))
		if r.Error != "" {
			lines = append(lines, errorStyle.Render("      ! "+r.Error))
		}
	}
	return strings.Join(lines, "\n")
}

// renderNotices draws the visible notices, oldest first.
func renderNotices(notices []notice.Notice) string {
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		lines = append(lines, noticeStyles[n.Severity].Render(fmt.Sprintf("[%s] %s", n.Severity, n.Message)))
	}
	return strings.Join(lines, "\n")
}

func render(rules []rule.SyncRule, notices []notice.Notice) string {
	parts := []string{titleStyle.Render("Directory Sync"), renderRules(rules)}
	if len(notices) > 0 {
		parts = append(parts, "", renderNotices(notices))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

// ruleLabel is the option text used when choosing a rule.
func ruleLabel(i int, r rule.SyncRule) string {
	state := "off"
	if r.Enabled {
		state = "on"
	}
	return fmt.Sprintf("%d. [%s] %s -> %s (%s)", i, state, orDash(r.From), orDash(r.To), r.Mode)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
