package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/glimte/nativebridge/bridge"
	"github.com/glimte/nativebridge/monitor"
)

const (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	selectedColor  = lipgloss.Color("#374151")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Bold(true).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	tabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 2).
			Margin(0, 1, 0, 0)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Background(selectedColor).
			Bold(true).
			Padding(0, 2).
			Margin(0, 1, 0, 0)

	healthyStyle   = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	degradedStyle  = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	unhealthyStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2).
			Margin(1, 0)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Margin(1, 0)
)

var tabTitles = [tabCount]string{"Overview", "Commands", "Events", "Health"}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Width(m.width - 2).Render("Native Bridge")

	var content string
	switch m.activeTab {
	case overviewTab:
		content = m.renderOverview()
	case commandsTab:
		content = m.renderCommands()
	case eventsTab:
		content = m.renderEvents()
	case healthTab:
		content = m.renderHealth()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.renderTabs(),
		content,
		m.renderStatusBar(),
		helpStyle.Render("Tab/→: Next tab | Shift+Tab/←: Previous tab | ↑↓: Navigate | P: Ping | R: Refresh | C: Clear events | Space: Toggle auto-refresh | Q: Quit"),
	)
}

func (m model) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := tab(0); t < tabCount; t++ {
		if t == m.activeTab {
			tabs = append(tabs, activeTabStyle.Render(tabTitles[t]))
		} else {
			tabs = append(tabs, tabStyle.Render(tabTitles[t]))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, tabs...)
}

func (m model) renderOverview() string {
	s := m.metrics

	calls := fmt.Sprintf(
		"Calls: %d\nPending: %d\nError rate: %.1f%%\nCollecting for: %s",
		s.TotalCalls,
		s.Pending,
		s.ErrorRate()*100,
		formatDuration(since(s.CollectedSince)),
	)

	outcomes := []bridge.Outcome{
		bridge.OutcomeSuccess,
		bridge.OutcomeNativeError,
		bridge.OutcomeTimeout,
		bridge.OutcomeSendError,
		bridge.OutcomeCancelled,
		bridge.OutcomeClosed,
	}
	var lines []string
	for _, o := range outcomes {
		lines = append(lines, fmt.Sprintf("%-14s %d", o, s.OutcomeTotals[o]))
	}

	var dropped []string
	for _, reason := range sortedKeys(s.Dropped) {
		dropped = append(dropped, fmt.Sprintf("%-14s %d", reason, s.Dropped[reason]))
	}
	if len(dropped) == 0 {
		dropped = append(dropped, "none")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		cardStyle.Render("Calls\n\n"+calls),
		cardStyle.Render("Outcomes\n\n"+strings.Join(lines, "\n")),
		cardStyle.Render(fmt.Sprintf("Inbound\n\nEvents: %d kinds, handler failures: %d\nDropped:\n%s",
			len(s.Events), s.HandlerFailures, strings.Join(dropped, "\n"))),
	)
}

func (m model) renderCommands() string {
	names := sortedKeys(m.metrics.Commands)
	if len(names) == 0 {
		return cardStyle.Render("No calls yet")
	}

	rows := []string{
		fmt.Sprintf("%-24s %7s %7s %8s %8s", "Command", "Calls", "Errors", "Avg", "P95"),
		strings.Repeat("─", 60),
	}
	for i, name := range names {
		stats := m.metrics.Commands[name]
		style := lipgloss.NewStyle()
		if i == m.selectedCommand {
			style = style.Background(selectedColor)
		}
		rows = append(rows, style.Render(fmt.Sprintf("%-24s %7d %7d %7dms %7dms",
			truncateString(name, 24),
			stats.Calls,
			failedOf(stats),
			stats.Latency.AvgMs,
			stats.Latency.P95Ms,
		)))
	}

	list := cardStyle.Render("Commands\n\n" + strings.Join(rows, "\n"))
	if m.selectedCommand >= len(names) {
		return list
	}

	name := names[m.selectedCommand]
	stats := m.metrics.Commands[name]
	var outcomes []string
	for _, o := range sortedKeys(stats.Outcomes) {
		outcomes = append(outcomes, fmt.Sprintf("  %-14s %d", o, stats.Outcomes[o]))
	}
	details := fmt.Sprintf(
		"Command: %s\nCalls: %d\nLatency: min %dms / p50 %dms / p99 %dms / max %dms\nOutcomes:\n%s",
		name,
		stats.Calls,
		stats.Latency.MinMs,
		stats.Latency.P50Ms,
		stats.Latency.P99Ms,
		stats.Latency.MaxMs,
		strings.Join(outcomes, "\n"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, list, cardStyle.Render("Details\n\n"+details))
}

// failedOf counts completed calls that did not succeed
func failedOf(stats monitor.CommandStats) int64 {
	var failed int64
	for outcome, n := range stats.Outcomes {
		if outcome != bridge.OutcomeSuccess {
			failed += n
		}
	}
	return failed
}

func (m model) renderEvents() string {
	if len(m.log) == 0 {
		return cardStyle.Render("No events received")
	}

	// newest first, as many as fit
	limit := len(m.log)
	if m.height > 12 && limit > m.height-12 {
		limit = m.height - 12
	}
	rows := make([]string, 0, limit)
	for i := len(m.log) - 1; i >= len(m.log)-limit; i-- {
		e := m.log[i]
		rows = append(rows, fmt.Sprintf("%s  %-20s %s",
			e.at.Format(time.TimeOnly),
			truncateString(e.event, 20),
			truncateString(string(e.data), 60),
		))
	}
	return cardStyle.Render(fmt.Sprintf("Events (%d)\n\n%s", len(m.log), strings.Join(rows, "\n")))
}

func (m model) renderHealth() string {
	if m.health == nil {
		return cardStyle.Render("Loading health data...")
	}

	parts := []string{
		cardStyle.Render("Overall Status: " + statusStyle(m.health.Status).Render(strings.ToUpper(string(m.health.Status)))),
	}
	for _, name := range m.health.Names() {
		check := m.health.Checks[name]
		body := fmt.Sprintf("%s: %s\n%s", name, statusStyle(check.Status).Render(strings.ToUpper(string(check.Status))), check.Message)
		if check.Error != "" {
			body += "\n" + unhealthyStyle.Render(check.Error)
		}
		parts = append(parts, cardStyle.Render(body))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m model) renderStatusBar() string {
	parts := []string{"Auto-refresh: ON"}
	if !m.autoRefresh {
		parts[0] = "Auto-refresh: OFF"
	}
	parts = append(parts, "Last update: "+m.lastUpdate.Format(time.TimeOnly))
	if m.lastPing != "" {
		parts = append(parts, "Ping: "+m.lastPing)
	}
	if m.err != nil {
		parts = append(parts, unhealthyStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return helpStyle.Render(strings.Join(parts, " | "))
}

func statusStyle(s monitor.Status) lipgloss.Style {
	switch s {
	case monitor.StatusHealthy:
		return healthyStyle
	case monitor.StatusDegraded:
		return degradedStyle
	case monitor.StatusUnhealthy:
		return unhealthyStyle
	}
	return lipgloss.NewStyle()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func since(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return time.Since(t)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%.1fd", d.Hours()/24)
}

func truncateString(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
