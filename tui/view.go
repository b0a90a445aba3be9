package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	processingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))
)

var tabNames = []string{"Batches", "Detail", "Server"}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	active, failed := 0, 0
	for _, sum := range m.batches {
		switch sum.Status {
		case domain.BatchProcessing, domain.BatchPending:
			active++
		case domain.BatchFailed:
			failed++
		}
	}
	header := fmt.Sprintf(" OctaPulse Monitor │ Batches: %d │ Active: %d │ Failed: %d │ Refreshed: %s ",
		len(m.batches), active, failed, refreshedAgo(m.lastRefresh))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case tabBatches:
		section = m.renderBatches()
	case tabDetail:
		section = m.renderDetail()
	case tabServer:
		section = m.renderServer()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	if m.flash != "" && time.Now().Before(m.flashExp) {
		b.WriteString(completedStyle.Width(m.width).Render(" " + m.flash + " "))
		b.WriteString("\n")
	}
	if m.statusMsg != "" {
		b.WriteString(failedStyle.Width(m.width).Render(" " + m.statusMsg + " "))
		b.WriteString("\n")
	}

	var statusBar string
	switch m.activeTab {
	case tabDetail:
		statusBar = " [tab]switch [esc]back [c]ancel [r]efresh [q]uit "
	case tabServer:
		statusBar = " [tab]switch [r]efresh [q]uit "
	default:
		statusBar = " [tab]switch [j/k]navigate [enter]detail [c]ancel [r]efresh [q]uit "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderTabs() string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		label := fmt.Sprintf(" %s ", name)
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(label)
		} else {
			parts[i] = tabInactiveStyle.Render(label)
		}
	}
	return strings.Join(parts, "│")
}

func (m Model) renderBatches() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Batches"))
	b.WriteString("\n\n")

	if len(m.batches) == 0 {
		b.WriteString(dimmedStyle.Render("No batches yet. Submit one with: octapulse batch <manifest.yaml>"))
		return b.String()
	}

	b.WriteString(dimmedStyle.Render(fmt.Sprintf("  %-10s %-12s %-24s %5s %5s %6s  %s",
		"ID", "STATUS", "PROGRESS", "DONE", "FAIL", "TOTAL", "STARTED")))
	b.WriteString("\n")

	for i, sum := range m.batches {
		cursor := "  "
		if i == m.selectedRow {
			cursor = "▸ "
		}
		line := fmt.Sprintf("%s%-10s %-12s %-24s %5d %5d %6d  %s",
			cursor,
			shortID(sum.BatchID),
			string(sum.Status),
			renderBar(sum.ProgressPercent, 16),
			sum.CompletedImages,
			sum.FailedImages,
			sum.TotalImages,
			humanize.Time(sum.StartedAt),
		)
		style := statusStyle(sum.Status)
		if i == m.selectedRow {
			style = selectedStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDetail() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Batch Detail"))
	b.WriteString("\n\n")

	if m.detailID == "" {
		b.WriteString(dimmedStyle.Render("Select a batch on the Batches tab and press enter."))
		return b.String()
	}
	if m.detail == nil {
		b.WriteString(dimmedStyle.Render("Loading " + m.detailID + " ..."))
		return b.String()
	}

	d := m.detail
	b.WriteString(fmt.Sprintf("Batch:     %s\n", d.BatchID))
	b.WriteString(fmt.Sprintf("Status:    %s\n", statusStyle(d.Status).Render(string(d.Status))))
	b.WriteString(fmt.Sprintf("Progress:  %s %.1f%%\n", renderBar(d.ProgressPercent, 28), d.ProgressPercent))
	b.WriteString(fmt.Sprintf("Images:    %d done, %d failed of %d\n",
		d.CompletedImages, d.FailedImages, d.TotalImages))

	if d.CurrentImage != "" {
		b.WriteString(fmt.Sprintf("Analyzing: %s\n", d.CurrentImage))
	}
	if d.ProcessingRate != nil {
		b.WriteString(fmt.Sprintf("Rate:      %.1f images/min\n", *d.ProcessingRate))
	}
	if d.AverageProcessingTime != nil {
		b.WriteString(fmt.Sprintf("Average:   %.1fs per image\n", *d.AverageProcessingTime))
	}
	if d.EstimatedCompletionTime != nil {
		b.WriteString(fmt.Sprintf("ETA:       %s\n", humanize.Time(*d.EstimatedCompletionTime)))
	}
	if d.Message != "" {
		b.WriteString(fmt.Sprintf("Message:   %s\n", d.Message))
	}

	b.WriteString(fmt.Sprintf("Started:   %s\n", humanize.Time(d.StartedAt)))
	if d.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("Finished:  %s\n", humanize.Time(*d.CompletedAt)))
	}
	return b.String()
}

func (m Model) renderServer() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Server"))
	b.WriteString("\n\n")

	if m.health == nil {
		b.WriteString(dimmedStyle.Render("Waiting for health data ..."))
		return b.String()
	}

	status := m.health.Status
	if status == "ok" {
		b.WriteString(fmt.Sprintf("Health:    %s\n", completedStyle.Render(status)))
	} else {
		b.WriteString(fmt.Sprintf("Health:    %s\n", failedStyle.Render(status)))
	}
	b.WriteString(fmt.Sprintf("Uptime:    %s\n", (time.Duration(m.health.UptimeSeconds) * time.Second).String()))
	b.WriteString(fmt.Sprintf("Store:     %s objects\n", humanize.Comma(int64(m.health.StoreObjects))))

	if m.version != nil {
		b.WriteString(fmt.Sprintf("Version:   %s (api %s, model %s)\n",
			m.version.Version, m.version.APIVersion, m.version.ModelVersion))
	}
	return b.String()
}

func statusStyle(s domain.BatchStatus) lipgloss.Style {
	switch s {
	case domain.BatchCompleted:
		return completedStyle
	case domain.BatchProcessing:
		return processingStyle
	case domain.BatchFailed:
		return failedStyle
	default:
		return pendingStyle
	}
}

// renderBar draws a fixed-width progress bar
func renderBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// shortID trims a UUID down to its first block for table display
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func refreshedAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
