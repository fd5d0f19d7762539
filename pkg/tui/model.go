package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
)

// ViewMode selects what the list pane shows.
type ViewMode int

const (
	ViewSymbols ViewMode = iota
	ViewUnits
)

// Model is the browser's bubbletea model. The list pane shows symbols
// or units from the current snapshot, the detail pane follows the
// selection, and the input line doubles as a filter and a slash-command
// prompt.
type Model struct {
	lk *linker.Linker

	mode     ViewMode
	category string
	allRows  []Row
	rows     []Row
	selected int

	input     textinput.Model
	viewport  viewport.Model
	formatter *RowFormatter

	ready         bool
	width         int
	height        int
	isReloading   bool
	spinnerIndex  int
	statusMessage string
	showingHelp   bool

	titleStyle  lipgloss.Style
	statusStyle lipgloss.Style
	errorStyle  lipgloss.Style

	ctx                context.Context
	cancel             context.CancelFunc
	ctrlCPressCount    int
	lastCtrlCPressTime time.Time
}

// NewModel creates a browser over the linker's current snapshot.
func NewModel(ctx context.Context, lk *linker.Linker) Model {
	ti := textinput.New()
	ti.Placeholder = "Filter symbols, or type / for commands..."
	ti.Focus()
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	vp := viewport.New(0, 0)
	vp.KeyMap.PageDown.SetEnabled(true)
	vp.KeyMap.PageUp.SetEnabled(true)

	ctx, cancel := context.WithCancel(ctx)

	m := Model{
		lk:            lk,
		mode:          ViewSymbols,
		input:         ti,
		viewport:      vp,
		formatter:     NewRowFormatter(80),
		statusMessage: "Ready",
		titleStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true),
		statusStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		errorStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
		ctx:           ctx,
		cancel:        cancel,
	}
	m.rebuildRows()
	return m
}

// rebuildRows re-reads the snapshot and applies the current filter.
func (m *Model) rebuildRows() {
	snap := m.lk.Snapshot()
	switch m.mode {
	case ViewUnits:
		m.allRows = BuildUnitRows(snap.Session)
	default:
		m.allRows = BuildSymbolRows(snap.Registry, m.category)
	}
	m.applyFilter()
}

func (m *Model) applyFilter() {
	query := m.input.Value()
	if strings.HasPrefix(query, "/") {
		query = ""
	}
	m.rows = FilterRows(m.allRows, query)
	if m.selected >= len(m.rows) {
		m.selected = len(m.rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	m.updateDetail()
}

// updateDetail renders the selected row into the detail viewport.
func (m *Model) updateDetail() {
	if m.showingHelp {
		m.viewport.SetContent(GetHelpText())
		return
	}
	if len(m.rows) == 0 {
		m.viewport.SetContent("No matches.")
		return
	}

	row := m.rows[m.selected]
	snap := m.lk.Snapshot()
	switch row.Kind {
	case RowUnit:
		if unit := snap.Session.Unit(row.ID); unit != nil {
			m.viewport.SetContent(FormatUnitDetail(unit))
		}
	default:
		if desc, ok := snap.Registry.Resolve(row.ID); ok {
			m.viewport.SetContent(FormatSymbolDetail(desc, snap.Session.Unit(desc.UnitID)))
		}
	}
	m.viewport.GotoTop()
}

func (m *Model) setStatus(msg string) {
	m.statusMessage = msg
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

type reloadDoneMsg struct{ err error }
type spinnerTickMsg struct{}
type resetCtrlCMsg struct{}

func (m Model) reloadCmd() tea.Cmd {
	return func() tea.Msg {
		return reloadDoneMsg{err: m.lk.Reload(m.ctx)}
	}
}

func spinnerTickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// resetCtrlCCmd resets the Ctrl+C counter after a timeout
func resetCtrlCCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return resetCtrlCMsg{}
	})
}

// Update handles the message updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case resetCtrlCMsg:
		if m.statusMessage == "Press Ctrl+C again to quit" {
			m.statusMessage = "Ready"
			m.ctrlCPressCount = 0
		}
		return m, nil

	case reloadDoneMsg:
		m.isReloading = false
		if msg.err != nil {
			m.setStatus(m.errorStyle.Render("Relink failed: " + msg.err.Error()))
			return m, nil
		}
		m.rebuildRows()
		loaded, warned, failed := m.lk.Session().Counts()
		m.setStatus(fmt.Sprintf("Relinked: %d loaded, %d warned, %d failed", loaded, warned, failed))
		return m, nil

	case spinnerTickMsg:
		if m.isReloading {
			m.spinnerIndex = (m.spinnerIndex + 1) % 8
			m.setStatus("Relinking " + GetSpinnerChar(m.spinnerIndex))
			return m, spinnerTickCmd()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			// Check if this is a second ctrl+c press within 2 seconds
			now := time.Now()
			if m.ctrlCPressCount > 0 && now.Sub(m.lastCtrlCPressTime) < 2*time.Second {
				m.cancel()
				return m, tea.Quit
			}
			m.ctrlCPressCount = 1
			m.lastCtrlCPressTime = now
			m.statusMessage = "Press Ctrl+C again to quit"
			return m, resetCtrlCCmd()

		case tea.KeyEsc:
			if m.showingHelp {
				m.showingHelp = false
				m.updateDetail()
				return m, nil
			}
			m.input.Reset()
			m.applyFilter()
			return m, nil

		case tea.KeyCtrlH:
			m.showingHelp = !m.showingHelp
			m.updateDetail()
			return m, nil

		case tea.KeyTab:
			if m.mode == ViewSymbols {
				m.mode = ViewUnits
			} else {
				m.mode = ViewSymbols
			}
			m.selected = 0
			m.showingHelp = false
			m.rebuildRows()
			return m, nil

		case tea.KeyCtrlR:
			if !m.isReloading {
				m.isReloading = true
				m.setStatus("Relinking " + GetSpinnerChar(m.spinnerIndex))
				return m, tea.Batch(m.reloadCmd(), spinnerTickCmd())
			}
			return m, nil

		case tea.KeyUp:
			if m.selected > 0 {
				m.selected--
				m.updateDetail()
			}
			return m, nil

		case tea.KeyDown:
			if m.selected < len(m.rows)-1 {
				m.selected++
				m.updateDetail()
			}
			return m, nil

		case tea.KeyPgUp:
			m.viewport.PageUp()
			return m, nil

		case tea.KeyPgDown:
			m.viewport.PageDown()
			return m, nil

		case tea.KeyEnter:
			if command, args, ok := ParseCommand(m.input.Value()); ok {
				m.input.Reset()
				return m.runCommand(command, args)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 4 // input box + status bar
		listHeight := m.listHeight()

		m.formatter.SetWidth(msg.Width)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - headerHeight - footerHeight - listHeight - 2
		if m.viewport.Height < 3 {
			m.viewport.Height = 3
		}
		m.input.Width = msg.Width - 6

		if !m.ready {
			m.ready = true
		}
		m.updateDetail()
	}

	// Keystrokes not handled above edit the filter.
	previous := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.input.Value() != previous {
		m.selected = 0
		m.applyFilter()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) runCommand(command Command, args string) (tea.Model, tea.Cmd) {
	switch command {
	case CommandSymbols:
		m.mode = ViewSymbols
		m.category = ""
		m.selected = 0
		m.rebuildRows()
		m.setStatus("Showing symbols")
	case CommandUnits:
		m.mode = ViewUnits
		m.category = ""
		m.selected = 0
		m.rebuildRows()
		m.setStatus("Showing units")
	case CommandCategory:
		m.mode = ViewSymbols
		m.category = strings.TrimSpace(args)
		m.selected = 0
		m.rebuildRows()
		if m.category == "" {
			m.setStatus("Category filter cleared")
		} else {
			m.setStatus("Category: " + m.category)
		}
	case CommandReload:
		if !m.isReloading {
			m.isReloading = true
			m.setStatus("Relinking " + GetSpinnerChar(m.spinnerIndex))
			return m, tea.Batch(m.reloadCmd(), spinnerTickCmd())
		}
	case CommandHelp:
		m.showingHelp = true
		m.updateDetail()
	case CommandQuit:
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) listHeight() int {
	h := m.height / 3
	if h < 5 {
		h = 5
	}
	if h > 14 {
		h = 14
	}
	return h
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	snap := m.lk.Snapshot()
	loaded, warned, failed := snap.Session.Counts()

	title := m.titleStyle.Render("ldagent")
	header := fmt.Sprintf("%s  %d units (%d loaded, %d warned, %d failed)  %d symbols",
		title, len(snap.Session.Units), loaded, warned, failed, snap.Registry.Len())
	if m.mode == ViewUnits {
		header += "  [units]"
	} else if m.category != "" {
		header += "  [" + m.category + "]"
	}

	list := m.formatter.FormatRows(m.rows, m.selected, m.listHeight())

	detailBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("238")).
		Padding(0, 1).
		Width(m.width - 2).
		Render(m.viewport.View())

	inputBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(0, 1).
		Width(m.width - 2).
		Render(m.input.View())

	statusBar := m.statusStyle.Render(m.statusMessage + "  (Tab: symbols/units, Ctrl+R: relink, Ctrl+H: help)")

	return header + "\n\n" + list + "\n" + detailBox + "\n" + inputBox + "\n" + statusBar
}
