// Package tui is the terminal monitor for the analysis server. It
// polls the HTTP API once a second and renders batch lifecycle state.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/octapulse-dev/octapulse-core/internal/client"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// Tab indices
const (
	tabBatches = iota
	tabDetail
	tabServer
	tabCount
)

// Model is the TUI application model
type Model struct {
	client *client.Client

	// Data
	batches []domain.BatchSummary
	detail  *domain.BatchProgress
	health  *client.Health
	version *client.VersionInfo

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	detailID    string
	statusMsg   string
	flash       string
	flashExp    time.Time

	// Refresh
	lastRefresh time.Time
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Client *client.Client

	// BatchID opens the monitor directly on one batch's detail view
	BatchID string
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	m := Model{client: cfg.Client}
	if cfg.BatchID != "" {
		m.detailID = cfg.BatchID
		m.activeTab = tabDetail
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
