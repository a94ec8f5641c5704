package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-hls-analyzer/internal/stats"
)

const separator = " │ "

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())
	sections = append(sections, renderTwoColumns(
		m.availabilityLines(),
		m.latencyLines(),
		m.width,
	))
	sections = append(sections, m.renderProbes())

	if len(m.recent) > 0 {
		sections = append(sections, m.renderRecentFailures())
	}

	if m.done {
		sections = append(sections, m.renderFinal())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	status := statusInfo.Render("RUNNING")
	switch {
	case m.done && m.doneErr != nil:
		status = statusError.Render("FAILED")
	case m.done:
		status = statusOK.Render("DONE")
	}

	header := " go-hls-analyzer" + separator + status + separator +
		"Elapsed: " + stats.FormatDuration(m.Elapsed()) + " "

	return headerStyle.Render(header)
}

// =============================================================================
// Progress
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := m.width - 30
	if barWidth > 50 {
		barWidth = 50
	}

	label := fmt.Sprintf("Segments %d/%d", m.checked, m.planned)
	line := lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label),
		RenderProgressBar(m.Progress(), barWidth),
	)
	return line
}

// =============================================================================
// Availability and latency
// =============================================================================

func (m Model) availabilityLines() []string {
	lines := []string{
		sectionHeaderStyle.Render("Availability"),
		RenderKeyValue("Checked", fmt.Sprintf("%d", m.checked)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Available:"),
			valueGoodStyle.Render(fmt.Sprintf("%d", m.available)),
		),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Unreachable:"),
			GetFailureRateStyle(m.FailureRate()).Render(
				fmt.Sprintf("%d (%.1f%%)", m.unreachable, m.FailureRate()*100)),
		),
	}

	for _, cc := range m.sortedCategories() {
		lines = append(lines, "  "+mutedStyle.Render(fmt.Sprintf("%-14s %d", cc.category, cc.count)))
	}
	return lines
}

func (m Model) latencyLines() []string {
	lines := []string{sectionHeaderStyle.Render("Check Latency")}
	if m.available == 0 {
		return append(lines, dimStyle.Render("no samples yet"))
	}
	return append(lines,
		renderLatencyRow("P50", m.LatencyPercentile(0.50)),
		renderLatencyRow("P95", m.LatencyPercentile(0.95)),
		renderLatencyRow("P99", m.LatencyPercentile(0.99)),
	)
}

func renderLatencyRow(label string, d time.Duration) string {
	style := valueStyle
	switch {
	case d > time.Second:
		style = valueBadStyle
	case d > 250*time.Millisecond:
		style = valueWarnStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		style.Render(stats.FormatMs(d)),
	)
}

// =============================================================================
// Probes
// =============================================================================

func (m Model) renderProbes() string {
	if m.probesPlanned == 0 {
		return boxStyle.Render(dimStyle.Render("Probing disabled"))
	}

	failed := valueGoodStyle
	if m.probeFailed > 0 {
		failed = valueBadStyle
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Probes:"),
		valueStyle.Render(fmt.Sprintf("%d/%d", m.probed, m.probesPlanned)),
		mutedStyle.Render("  failed "),
		failed.Render(fmt.Sprintf("%d", m.probeFailed)),
	)
	return boxStyle.Render(line)
}

// =============================================================================
// Recent failures
// =============================================================================

func (m Model) renderRecentFailures() string {
	lines := []string{sectionHeaderStyle.Render("Recent Failures")}
	maxLen := m.width - 24
	for _, o := range m.recent {
		lines = append(lines, valueBadStyle.Render(fmt.Sprintf("%-20s", o.Reason()))+dimStyle.Render(truncate(o.URI, maxLen)))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Final figures
// =============================================================================

func (m Model) renderFinal() string {
	if m.doneErr != nil {
		return boxStyle.Render(statusError.Render("Error: ") + m.doneErr.Error())
	}

	s := m.final
	lines := []string{
		RenderKeyValue("Highest Bitrate", stats.FormatMbps(s.Highest)),
		RenderKeyValue("Average Bitrate", stats.FormatMbps(s.Average)),
		RenderKeyValue("Lowest Bitrate", stats.FormatMbps(s.Lowest)),
		RenderKeyValue("Codec", orUnknown(s.Codec)),
		RenderKeyValue("Resolution", orUnknown(s.Resolution)),
		RenderKeyValue("Video Range", orUnknown(s.VideoRange)),
		RenderKeyValue("Network Check", s.NetworkCheck),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := "q: quit"
	if m.done {
		shortcuts = "run complete"
	}

	right := "Manifest: " + truncate(m.manifest, m.width-40)
	if m.metricsAddr != "" {
		right += separator + "Metrics: " + m.metricsAddr
	}

	left := dimStyle.Render(shortcuts)
	rightR := dimStyle.Render(right)

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightR) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightR,
		),
	)
}

// =============================================================================
// Layout helpers
// =============================================================================

// truncate shortens s to max runes with a trailing "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 10 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// renderTwoColumns places left and right side by side.
func renderTwoColumns(left, right []string, totalWidth int) string {
	colWidth := totalWidth/2 - 2
	if colWidth < 30 {
		colWidth = 30
	}

	leftCol := lipgloss.NewStyle().Width(colWidth).Render(strings.Join(left, "\n"))
	rightCol := lipgloss.NewStyle().Width(colWidth).Render(strings.Join(right, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, leftCol, "  ", rightCol)
}
