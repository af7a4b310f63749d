// Package ui draws a session controller in the terminal.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lipread.town/session"
)

// Controller is what the UI needs from *session.Controller.
type Controller interface {
	Activate() error
	Deactivate() error
	Retry() error
	StartRecording() error
	StopRecording() error
	ProcessCurrent() error
	Snapshot() session.Snapshot
	Updates() <-chan session.Snapshot
}

const refreshInterval = 100 * time.Millisecond

var (
	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF3B30")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	resultStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
)

type snapshotMsg session.Snapshot

type refreshMsg time.Time

type intentMsg struct {
	name string
	err  error
}

type model struct {
	ctrl     Controller
	snap     session.Snapshot
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	ready    bool
	showLog  bool
	results  []string
	log      []string
	now      func() time.Time
}

func newModel(ctrl Controller) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = onStyle

	return model{
		ctrl:    ctrl,
		snap:    ctrl.Snapshot(),
		spinner: s,
		help:    help.New(),
		now:     time.Now,
	}
}

// Run shows the controller until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl Controller) error {
	p := tea.NewProgram(newModel(ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.ctrl.Updates()),
		m.spinner.Tick,
		refresh(),
	)
}

func waitForSnapshot(updates <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-updates)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func intent(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return intentMsg{name: name, err: fn()}
	}
}

// quit releases the camera before the program exits.
func quit(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		_ = ctrl.Deactivate()
		return tea.Quit()
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, quit(m.ctrl)
		case key.Matches(msg, keys.Log):
			m.showLog = !m.showLog
			m.refreshContent()
		case key.Matches(msg, keys.Toggle):
			if m.snap.State == session.Recording {
				return m, intent("stop", m.ctrl.StopRecording)
			}
			return m, intent("start", m.ctrl.StartRecording)
		case key.Matches(msg, keys.Process):
			return m, intent("process", m.ctrl.ProcessCurrent)
		case key.Matches(msg, keys.Retry):
			return m, intent("retry", m.ctrl.Retry)
		case key.Matches(msg, keys.Activate):
			return m, intent("activate", m.ctrl.Activate)
		case key.Matches(msg, keys.Deactivate):
			return m, intent("deactivate", m.ctrl.Deactivate)
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, max(1, msg.Height-verticalMarginHeight))
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = max(1, msg.Height-verticalMarginHeight)
		}
		m.help.Width = msg.Width
		m.refreshContent()

	case snapshotMsg:
		m.observe(session.Snapshot(msg))
		cmds = append(cmds, waitForSnapshot(m.ctrl.Updates()))

	case intentMsg:
		if msg.err != nil {
			m.appendLog(fmt.Sprintf("%s %s: %v", m.stamp(), msg.name, msg.err))
		}

	case refreshMsg:
		cmds = append(cmds, refresh())

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) observe(s session.Snapshot) {
	prev := m.snap
	m.snap = s

	if prev.State != s.State {
		m.appendLog(fmt.Sprintf("%s %s -> %s", m.stamp(), prev.State, s.State))
	}
	if s.Status != prev.Status && s.Status.Level == session.LevelError {
		m.appendLog(fmt.Sprintf("%s %s [%s]", m.stamp(), s.Status.Text, s.Status.Code))
	}
	if s.ResultSeq != prev.ResultSeq && s.Result != "" {
		m.results = append(m.results, s.Result)
		m.refreshContent()
		m.viewport.GotoBottom()
	}
}

func (m *model) appendLog(line string) {
	m.log = append(m.log, line)
	if m.showLog {
		m.refreshContent()
		m.viewport.GotoBottom()
	}
}

func (m *model) refreshContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.contentView())
}

func (m model) stamp() string {
	return m.now().Format("15:04:05")
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
	)
}

func (m model) headerView() string {
	title := barStyle.Render("Lip Reading")
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, line)
	return lipgloss.JoinVertical(lipgloss.Left, header, m.panelView(), "")
}

func (m model) panelView() string {
	s := m.snap

	var b strings.Builder
	fmt.Fprintf(&b, " %s  %s\n", stateView(s), m.recordingView())
	fmt.Fprintf(&b, " %s  %s\n",
		indicator("face", s.Indicators.FaceDetected),
		indicator("speaking", s.Indicators.SpeakingDetected),
	)
	if s.Session.Recording || s.Stats.Sent > 0 {
		fmt.Fprintf(&b, " %s\n", dimStyle.Render(fmt.Sprintf(
			"frames sent %d  ok %d  failed %d  skipped %d  late %d",
			s.Stats.Sent, s.Stats.Acked, s.Stats.Failed, s.Stats.Skipped, s.Stats.Late,
		)))
	}
	b.WriteString(" " + m.statusView())
	return b.String()
}

func stateView(s session.Snapshot) string {
	label := s.State.String()
	if s.Session.ID != "" {
		label += dimStyle.Render(" " + shortID(s.Session.ID))
	}
	return label
}

func (m model) recordingView() string {
	s := m.snap
	if !s.Session.Recording {
		return dimStyle.Render("○ not recording")
	}
	var elapsed time.Duration
	if !s.Stats.StartedAt.IsZero() {
		elapsed = max(0, m.now().Sub(s.Stats.StartedAt))
	}
	return recStyle.Render(fmt.Sprintf("● Recording... (%.1fs)", elapsed.Seconds()))
}

func indicator(name string, on bool) string {
	if on {
		return onStyle.Render("● " + name)
	}
	return dimStyle.Render("○ " + name)
}

func (m model) statusView() string {
	st := m.snap.Status
	text := st.Text
	switch st.Level {
	case session.LevelError:
		text = errorStyle.Render(text)
	case session.LevelWarn:
		text = warnStyle.Render(text)
	case session.LevelSuccess:
		text = successStyle.Render(text)
	}
	if m.snap.Pending {
		return m.spinner.View() + " " + text
	}
	return text
}

func (m model) footerView() string {
	helpView := m.help.View(keys)
	info := barStyle.Render("Tab to switch views")
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(info)))
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Center, line, info),
		helpView,
	)
}

func (m model) contentView() string {
	if m.showLog {
		return m.logView()
	}
	return m.resultsView()
}

func (m model) resultsView() string {
	if len(m.results) == 0 {
		return dimStyle.Render(" Results will appear here.")
	}
	var content strings.Builder
	for i, r := range m.results {
		style := resultStyle
		if i < len(m.results)-1 {
			style = dimStyle
		}
		content.WriteString(" " + style.Render(r) + "\n")
	}
	return content.String()
}

func (m model) logView() string {
	var content strings.Builder
	for _, entry := range m.log {
		content.WriteString(entry)
		content.WriteString("\n")
	}
	return content.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
