package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hive/pkg/protocol"
	"hive/pkg/store"
)

// maxFeedLines bounds the live feed kept in memory.
const maxFeedLines = 200

// tickMsg triggers the periodic activity refresh.
type tickMsg time.Time

// activityMsg carries freshly read activity rows.
type activityMsg []store.ActivityRecord

// heartbeatMsg carries one observed agent heartbeat.
type heartbeatMsg struct {
	Agent  string
	Status protocol.Status
}

// feedMsg is one live feed line (chatter output or subprocess progress).
type feedMsg string

// fsChangeMsg is sent when the activity database file changes on disk.
type fsChangeMsg struct{}

// agentRow is one line of the agents table.
type agentRow struct {
	Agent    string
	Status   string
	TaskID   string
	Done     int
	LastSeen time.Time
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	storePath string
	store     *store.Store

	agents   map[string]agentRow
	activity []store.ActivityRecord
	feed     []string

	viewport viewport.Model
	width    int
	height   int
	ready    bool
}

func newModel(storePath string, st *store.Store) Model {
	return Model{
		storePath: storePath,
		store:     st,
		agents:    make(map[string]agentRow),
	}
}

// Init starts the tick loop and the database watcher.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), fetchActivityCmd(m.store), watchStoreCmd(m.storePath))
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		feedHeight := m.height - m.headerHeight()
		if feedHeight < 3 {
			feedHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, feedHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = feedHeight
		}
		m.viewport.SetContent(strings.Join(m.feed, "\n"))

	case tickMsg:
		return m, tea.Batch(tickCmd(), fetchActivityCmd(m.store))

	case fsChangeMsg:
		return m, tea.Batch(fetchActivityCmd(m.store), watchStoreCmd(m.storePath))

	case activityMsg:
		m.activity = msg

	case heartbeatMsg:
		m.agents[msg.Agent] = agentRow{
			Agent:    msg.Agent,
			Status:   msg.Status.Status,
			TaskID:   msg.Status.CurrentTaskID,
			Done:     msg.Status.CompletedCount,
			LastSeen: time.Now(),
		}

	case feedMsg:
		m.feed = append(m.feed, string(msg))
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[len(m.feed)-maxFeedLines:]
		}
		if m.ready {
			m.viewport.SetContent(strings.Join(m.feed, "\n"))
			m.viewport.GotoBottom()
		}
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// headerHeight is the vertical space above the feed viewport.
func (m Model) headerHeight() int {
	return len(m.agentRows()) + 6
}

// agentRows returns the table rows sorted by agent name.
func (m Model) agentRows() []agentRow {
	rows := make([]agentRow, 0, len(m.agents))
	for _, r := range m.agents {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Agent < rows[j].Agent })
	return rows
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	workingCell = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	idleCell    = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
	offlineCell = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hive"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d agents reporting, %d activity rows", len(m.agents), len(m.activity))))
	b.WriteString("\n\n")

	b.WriteString(renderAgentsTable(m.agentRows()))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("live feed"))
	b.WriteString("\n")
	if m.ready {
		b.WriteString(m.viewport.View())
	}
	return b.String()
}

// renderAgentsTable renders the heartbeat table.
func renderAgentsTable(rows []agentRow) string {
	if len(rows) == 0 {
		return mutedStyle.Render("no heartbeats observed yet") + "\n"
	}

	var b strings.Builder
	headers := []string{"Agent", "Status", "Task", "Done", "Last seen"}
	widths := []int{12, 14, 24, 6, 12}

	parts := make([]string, 0, len(headers))
	for i, h := range headers {
		parts = append(parts, headerStyle.Width(widths[i]).Render(h))
	}
	b.WriteString(strings.Join(parts, " "))
	b.WriteString("\n")

	for _, r := range rows {
		style := idleCell
		switch r.Status {
		case protocol.StatusWorking:
			style = workingCell
		case protocol.StatusOffline, protocol.StatusShuttingDown:
			style = offlineCell
		}
		cells := []string{
			lipgloss.NewStyle().Width(widths[0]).Render(r.Agent),
			style.Width(widths[1]).Render(r.Status),
			lipgloss.NewStyle().Width(widths[2]).Render(r.TaskID),
			lipgloss.NewStyle().Width(widths[3]).Render(fmt.Sprintf("%d", r.Done)),
			mutedStyle.Width(widths[4]).Render(r.LastSeen.Format("15:04:05")),
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n")
	}
	return b.String()
}
