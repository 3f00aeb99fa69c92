// Package tui renders the live sync dashboard behind "fieldsync watch".
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"fieldsync/backend"
	backendsync "fieldsync/backend/sync"
	fsync "fieldsync/internal/sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Deps is what the dashboard reads and drives
type Deps struct {
	Board   *fsync.StatusBoard
	Sync    func(ctx context.Context) (*backendsync.SyncResult, error)
	Pending func(ctx context.Context) (map[backend.Kind]int, error)
}

type statusMsg fsync.StatusEvent

type statusClosedMsg struct{}

type refreshMsg struct{}

type syncDoneMsg struct {
	result *backendsync.SyncResult
	err    error
}

type pendingMsg struct {
	counts map[backend.Kind]int
	err    error
}

// watchModel is the bubbletea model for the dashboard
type watchModel struct {
	ctx     context.Context
	deps    Deps
	events  <-chan fsync.StatusEvent
	spinner spinner.Model

	status   fsync.StatusEvent
	pending  map[backend.Kind]int
	syncing  bool
	last     *syncDoneMsg
	quitting bool
	width    int
}

func newModel(ctx context.Context, deps Deps, events <-chan fsync.StatusEvent) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return watchModel{
		ctx:     ctx,
		deps:    deps,
		events:  events,
		spinner: s,
		width:   80,
	}
}

func waitForStatus(events <-chan fsync.StatusEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return statusClosedMsg{}
		}
		return statusMsg(ev)
	}
}

// refreshEvery is how often the queue is reloaded while idle
const refreshEvery = 5 * time.Second

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m watchModel) loadPending() tea.Cmd {
	return func() tea.Msg {
		counts, err := m.deps.Pending(m.ctx)
		return pendingMsg{counts: counts, err: err}
	}
}

func (m watchModel) runSync() tea.Cmd {
	return func() tea.Msg {
		result, err := m.deps.Sync(m.ctx)
		return syncDoneMsg{result: result, err: err}
	}
}

// Init starts listening to the status board and loads the queue
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(waitForStatus(m.events), m.loadPending(), m.spinner.Tick, scheduleRefresh())
}

// Update handles messages and updates model state
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "s":
			if m.syncing {
				return m, nil
			}
			m.syncing = true
			return m, m.runSync()
		case "r":
			return m, m.loadPending()
		}

	case statusMsg:
		versionChanged := msg.Version != m.status.Version
		m.status = fsync.StatusEvent(msg)
		cmds := []tea.Cmd{waitForStatus(m.events)}
		if versionChanged {
			cmds = append(cmds, m.loadPending())
		}
		return m, tea.Batch(cmds...)

	case statusClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case syncDoneMsg:
		m.syncing = false
		m.last = &msg
		return m, m.loadPending()

	case refreshMsg:
		return m, tea.Batch(m.loadPending(), scheduleRefresh())

	case pendingMsg:
		if msg.err == nil {
			m.pending = msg.counts
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	alertStyle   = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)
)

var severityStyles = map[fsync.Severity]lipgloss.Style{
	fsync.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	fsync.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	fsync.SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

// View renders the UI
func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(m.renderHeader())
	s.WriteString("\n\n")

	if m.status.Alert != "" {
		s.WriteString(alertStyle.Render("! " + m.status.Alert))
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderQueue())
	s.WriteString("\n")

	if m.syncing {
		s.WriteString(m.spinner.View() + " syncing…\n")
	} else if m.last != nil {
		s.WriteString(m.renderLast())
		s.WriteString("\n")
	}

	for _, toast := range m.status.Toasts {
		style := severityStyles[toast.Severity]
		s.WriteString(style.Render("• " + toast.Message))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(dimStyle.Render("s: sync now • r: refresh queue • q: quit"))
	return s.String()
}

func (m watchModel) renderHeader() string {
	conn := onlineStyle.Render("● online")
	if !m.status.Online {
		conn = offlineStyle.Render("○ offline")
	}
	version := dimStyle.Render(fmt.Sprintf("data version %d", m.status.Version))
	return fmt.Sprintf("%s  %s  %s", titleStyle.Render("fieldsync"), conn, version)
}

func (m watchModel) renderQueue() string {
	if len(m.pending) == 0 {
		return boxStyle.Render("Nothing waiting to sync")
	}

	kinds := make([]string, 0, len(m.pending))
	for kind := range m.pending {
		kinds = append(kinds, string(kind))
	}
	slices.Sort(kinds)

	var lines []string
	for _, kind := range kinds {
		lines = append(lines, fmt.Sprintf("%-14s %d", kind, m.pending[backend.Kind(kind)]))
	}
	return boxStyle.Width(min(m.width-2, 40)).Render("Pending\n" + strings.Join(lines, "\n"))
}

func (m watchModel) renderLast() string {
	if m.last.err != nil {
		return severityStyles[fsync.SeverityError].Render("last sync: " + m.last.err.Error())
	}
	if m.last.result == nil {
		return ""
	}
	return dimStyle.Render("last sync: " + m.last.result.String())
}

// Run shows the dashboard until the user quits or ctx is cancelled
func Run(ctx context.Context, deps Deps) error {
	events, unsubscribe := deps.Board.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(newModel(ctx, deps, events), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running dashboard: %w", err)
	}
	return nil
}
