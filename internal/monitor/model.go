package monitor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"fleetsim/internal/backbone"
)

const maxLogLines = 500

type model struct {
	prefix string
	server *backbone.ServerStatus
	sims   map[string]backbone.SimulationStatus
	table  table.Model
	vp     viewport.Model
	lines  []string
	wrap   bool
	width  int
	height int
}

func newModel(prefix string) model {
	cols := []table.Column{
		{Title: "Profile", Width: 20},
		{Title: "State", Width: 9},
		{Title: "Nodes", Width: 6},
		{Title: "Published", Width: 10},
		{Title: "Errors", Width: 7},
		{Title: "Reconn", Width: 7},
		{Title: "Updated", Width: 9},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(1))
	return model{
		prefix: prefix,
		sims:   make(map[string]backbone.SimulationStatus),
		table:  t,
		vp:     viewport.New(0, 0),
		wrap:   true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.resize()
	case serverMsg:
		st := msg.ServerStatus
		m.server = &st
	case statusMsg:
		m.sims[msg.ProfileID] = msg.SimulationStatus
		m.refreshTable()
	case clearMsg:
		delete(m.sims, msg.id)
		m.refreshTable()
	case logMsg:
		m.lines = append(m.lines, msg.line)
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		m.refreshViewport()
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *model) refreshTable() {
	ids := make([]string, 0, len(m.sims))
	for id := range m.sims {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		st := m.sims[id]
		rows = append(rows, table.Row{
			id,
			string(st.State),
			strconv.Itoa(st.NodeCount),
			strconv.FormatInt(st.MessagesPublished, 10),
			strconv.FormatInt(st.PublishErrors, 10),
			strconv.Itoa(st.ReconnectAttempts),
			time.UnixMilli(st.Timestamp).Format("15:04:05"),
		})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
	m.resize()
}

func (m *model) resize() {
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.table.View()) + 1
	h := m.height - used
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	lines := m.lines
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.lines))
		for i, l := range m.lines {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func (m model) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Render("fleetsim " + m.prefix)
	state := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("● no heartbeat")
	if m.server != nil {
		color := lipgloss.Color("9")
		if m.server.Status == "online" {
			color = lipgloss.Color("10")
		}
		store := "store down"
		if m.server.StoreConnected {
			store = "store ok"
		}
		state = lipgloss.NewStyle().Foreground(color).Render("● "+m.server.Status) +
			fmt.Sprintf("  up %s  %s  active %d", time.Duration(m.server.UptimeSeconds)*time.Second, store, m.server.ActiveSimulations)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", state)
}

func (m model) View() string {
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("q quit · w wrap")
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.table.View(), m.vp.View(), help)
}
