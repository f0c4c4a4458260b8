package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/wire"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxLogLines bounds the event log kept by the monitor
const maxLogLines = 500

// Snapshot is the keyboard state shown by the monitor
type Snapshot struct {
	Device      string
	Focused     bool
	Surface     uint32
	Client      wire.ClientID
	Keys        []uint32
	Mods        keymap.Modifiers
	KeymapState string
	Layout      string
	Pending     bool
	Grabbed     bool
	RepeatRate  uint32
	RepeatDelay uint32
	Bindings    int
}

// SnapshotMsg replaces the displayed keyboard state
type SnapshotMsg Snapshot

// EventMsg appends an outbound event to the log
type EventMsg wire.Event

// ErrorMsg shows an error in the status line
type ErrorMsg struct{ Err error }

type monitorKeys struct {
	Focus   key.Binding
	Release key.Binding
	Clear   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Focus, k.Release, k.Help, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Focus, k.Release, k.Clear},
		{k.Help, k.Quit},
	}
}

var defaultMonitorKeys = monitorKeys{
	Focus: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "toggle focus"),
	),
	Release: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "end grab"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear log"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// MonitorModel is a live view of a keyboard device and the events it sends
type MonitorModel struct {
	snapshot Snapshot
	lines    []string
	keyName  func(uint32) string

	onToggleFocus func()
	onRelease     func()

	keys     monitorKeys
	help     help.Model
	spinner  spinner.Model
	viewport viewport.Model
	err      error
	width    int
	height   int
	ready    bool
}

// NewMonitorModel creates a monitor. keyName labels protocol keycodes and
// may be nil.
func NewMonitorModel(keyName func(uint32) string) *MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerDot,
		FPS:    time.Second / 10,
	}
	s.Style = SpinnerStyle

	return &MonitorModel{
		keyName: keyName,
		keys:    defaultMonitorKeys,
		help:    help.New(),
		spinner: s,
	}
}

// OnToggleFocus sets the action bound to the focus key
func (m *MonitorModel) OnToggleFocus(fn func()) {
	m.onToggleFocus = fn
}

// OnRelease sets the action bound to the release key
func (m *MonitorModel) OnRelease(fn func()) {
	m.onRelease = fn
}

// Snapshot returns the state currently displayed
func (m *MonitorModel) Snapshot() Snapshot {
	return m.snapshot
}

// Lines returns the event log
func (m *MonitorModel) Lines() []string {
	return m.lines
}

func (m *MonitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Focus):
			if m.onToggleFocus != nil {
				m.onToggleFocus()
			}
		case key.Matches(msg, m.keys.Release):
			if m.onRelease != nil {
				m.onRelease()
			}
		case key.Matches(msg, m.keys.Clear):
			m.lines = nil
			m.refreshLog()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case SnapshotMsg:
		m.snapshot = Snapshot(msg)
		m.resize()
		return m, nil

	case EventMsg:
		m.appendEvent(wire.Event(msg))
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *MonitorModel) appendEvent(e wire.Event) {
	line := fmt.Sprintf("%s %s", MutedStyle.Render(fmt.Sprintf("client %d", e.Client)), e.String())
	if e.Kind == wire.KindKey && m.keyName != nil {
		if n := m.keyName(e.Key); n != "" {
			line += " " + InfoStyle.Render(n)
		}
	}
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.refreshLog()
}

func (m *MonitorModel) refreshLog() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *MonitorModel) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	used := lipgloss.Height(m.header()) + lipgloss.Height(m.status()) + lipgloss.Height(m.footer())
	h := m.height - used
	if h < 1 {
		h = 1
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, h)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = h
	}
	m.refreshLog()
}

func (m *MonitorModel) header() string {
	title := TitleStyle.Render("waykbd monitor")
	device := m.snapshot.Device
	if device == "" {
		device = "no input device"
	}
	return lipgloss.JoinHorizontal(lipgloss.Center,
		title, " ", m.spinner.View(), " ", SubtleStyle.Render(device))
}

func (m *MonitorModel) status() string {
	s := m.snapshot

	focus := FormatStatus(false, "no focus")
	if s.Focused {
		focus = FormatStatus(true, fmt.Sprintf("surface %d (client %d)", s.Surface, s.Client))
	}

	km := s.KeymapState
	if s.Layout != "" {
		km += " " + s.Layout
	}
	if s.Pending {
		km += " " + WarningStyle.Render("(change pending)")
	}

	grab := "self"
	if s.Grabbed {
		grab = WarningStyle.Render("grabbed")
	}

	rows := []string{
		FormatField("Focus", focus),
		FormatField("Pressed", FormatKeys(s.Keys, m.keyName)),
		FormatField("Modifiers", FormatModifiers(s.Mods)),
		FormatField("Keymap", km),
		FormatField("Repeat", fmt.Sprintf("%d/s after %dms", s.RepeatRate, s.RepeatDelay)),
		FormatField("Grab", grab),
		FormatField("Bindings", fmt.Sprintf("%d", s.Bindings)),
	}
	if m.err != nil {
		rows = append(rows, ErrorStyle.Render(IconError+" "+m.err.Error()))
	}
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *MonitorModel) footer() string {
	return m.help.View(m.keys)
}

func (m *MonitorModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.status(),
		m.viewport.View(),
		m.footer(),
	)
}
