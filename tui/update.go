package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/octapulse-dev/octapulse-core/internal/client"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// requestTimeout bounds each API poll
const requestTimeout = 5 * time.Second

type batchesMsg []domain.BatchSummary
type detailMsg domain.BatchProgress
type healthMsg client.Health
type versionMsg client.VersionInfo
type cancelledMsg string
type errMsg struct{ err error }

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, m.refreshCmd()
		case "j", "down":
			if m.activeTab == tabBatches && m.selectedRow < len(m.batches)-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.activeTab == tabBatches && m.selectedRow > 0 {
				m.selectedRow--
			}
		case "enter":
			if m.activeTab == tabBatches && m.selectedRow < len(m.batches) {
				m.detailID = m.batches[m.selectedRow].BatchID
				m.detail = nil
				m.activeTab = tabDetail
				return m, fetchDetail(m.client, m.detailID)
			}
		case "esc":
			if m.activeTab == tabDetail {
				m.activeTab = tabBatches
				return m, fetchBatches(m.client)
			}
		case "c":
			if id := m.selectedBatchID(); id != "" {
				return m, cancelBatch(m.client, id)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case batchesMsg:
		m.batches = msg
		m.statusMsg = ""
		m.lastRefresh = time.Now()
		if m.selectedRow >= len(m.batches) {
			m.selectedRow = max(0, len(m.batches)-1)
		}

	case detailMsg:
		d := domain.BatchProgress(msg)
		m.detail = &d
		m.statusMsg = ""
		m.lastRefresh = time.Now()

	case healthMsg:
		h := client.Health(msg)
		m.health = &h
		m.lastRefresh = time.Now()

	case versionMsg:
		v := client.VersionInfo(msg)
		m.version = &v

	case cancelledMsg:
		m.flash = fmt.Sprintf("Cancelled batch %s", shortID(string(msg)))
		m.flashExp = time.Now().Add(3 * time.Second)
		return m, m.refreshCmd()

	case errMsg:
		m.statusMsg = msg.err.Error()
	}

	return m, nil
}

// selectedBatchID resolves which batch a batch-scoped key press targets
func (m Model) selectedBatchID() string {
	switch m.activeTab {
	case tabDetail:
		return m.detailID
	case tabBatches:
		if m.selectedRow < len(m.batches) {
			return m.batches[m.selectedRow].BatchID
		}
	}
	return ""
}

// refreshCmd fetches the data behind the active tab
func (m Model) refreshCmd() tea.Cmd {
	switch m.activeTab {
	case tabDetail:
		if m.detailID != "" {
			return fetchDetail(m.client, m.detailID)
		}
		return fetchBatches(m.client)
	case tabServer:
		return tea.Batch(fetchHealth(m.client), fetchVersion(m.client))
	default:
		return fetchBatches(m.client)
	}
}

func fetchBatches(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		batches, err := c.List(ctx)
		if err != nil {
			return errMsg{err}
		}
		return batchesMsg(batches)
	}
}

func fetchDetail(c *client.Client, batchID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		progress, err := c.Status(ctx, batchID)
		if err != nil {
			return errMsg{err}
		}
		return detailMsg(progress)
	}
}

func fetchHealth(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		h, err := c.Healthz(ctx)
		if err != nil {
			return errMsg{err}
		}
		return healthMsg(h)
	}
}

func fetchVersion(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		v, err := c.Version(ctx)
		if err != nil {
			return errMsg{err}
		}
		return versionMsg(v)
	}
}

func cancelBatch(c *client.Client, batchID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := c.Cancel(ctx, batchID); err != nil {
			return errMsg{err}
		}
		return cancelledMsg(batchID)
	}
}
