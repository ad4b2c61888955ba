package dashboard

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/fedicache/internal/entity"
)

// helpBarHeight is the number of lines reserved for the help bar at the bottom.
const helpBarHeight = 1

// statusBarHeight is the line above the help bar showing the last operation.
const statusBarHeight = 1

// borderChrome is the number of lines consumed by top + bottom borders.
const borderChrome = 2

// Model is the root Bubble Tea model for the dashboard TUI.
type Model struct {
	title   string
	path    entity.Path
	actions Actions
	render  Renderer
	entries *entity.Memo[entity.Path, []entity.Entity]

	browse    browseState
	focus     Focus
	width     int
	height    int
	viewport  viewport.Model
	help      help.Model
	spinner   spinner.Model
	inFlight  int
	status    string
	statusErr bool
}

// NewModel creates a dashboard over the list at p, showing initial until the
// first StateChangedMsg arrives. A nil render uses RenderEntity.
func NewModel(title string, p entity.Path, actions Actions, render Renderer, initial *entity.State) Model {
	if render == nil {
		render = RenderEntity
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	m := Model{
		title:    title,
		path:     p,
		actions:  actions,
		render:   render,
		entries:  entity.NewEntitiesSelector[entity.Entity](),
		focus:    PaneLeft,
		viewport: viewport.New(0, 0),
		help:     help.New(),
		spinner:  s,
	}
	if initial != nil {
		m = m.applyState(initial)
	}
	// Init issues the first refresh.
	m.inFlight = 1
	m.status = string(OpRefresh) + "..."
	return m
}

// Init starts the spinner and the first refresh counted by NewModel.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, run(OpRefresh, "", m.actions.Refresh))
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		_, rightWidth := PaneWidths(msg.Width)
		vpWidth := rightWidth - borderChrome
		if vpWidth < 0 {
			vpWidth = 0
		}
		m.viewport.Width = vpWidth
		m.viewport.Height = m.contentHeight()
		return m.syncDetail(), nil

	case StateChangedMsg:
		return m.applyState(msg.State), nil

	case OpDoneMsg:
		if m.inFlight > 0 {
			m.inFlight--
		}
		m.status, m.statusErr = describe(msg), msg.Err != nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleKey processes global keys, then routes navigation to the focused pane.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		if m.focus == PaneLeft {
			m.focus = PaneRight
		} else {
			m.focus = PaneLeft
		}
		return m, nil
	case "r":
		cmd := m.start(OpRefresh, "", m.actions.Refresh)
		return m, cmd
	case "n":
		if m.browse.state.Next == "" {
			m.status, m.statusErr = "no more pages", false
			return m, nil
		}
		cmd := m.start(OpNextPage, "", m.actions.NextPage)
		return m, cmd
	case "i":
		actions := m.actions
		cmd := m.start(OpInvalidate, "", func() error {
			actions.Invalidate()
			return nil
		})
		return m, cmd
	case "d", "f":
		id := m.browse.SelectedID()
		if id == "" {
			return m, nil
		}
		actions := m.actions
		var cmd tea.Cmd
		if msg.String() == "d" {
			cmd = m.start(OpDismiss, id, func() error { return actions.Dismiss(id) })
		} else {
			cmd = m.start(OpFavourite, id, func() error { return actions.Favourite(id) })
		}
		return m, cmd
	}

	if m.focus == PaneRight {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	m.browse = m.browse.handleKey(msg)
	return m.syncDetail(), nil
}

// start returns a command running fn off the update loop.
func (m *Model) start(op Op, id string, fn func() error) tea.Cmd {
	m.inFlight++
	m.status, m.statusErr = string(op)+"...", false
	return run(op, id, fn)
}

func run(op Op, id string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return OpDoneMsg{Op: op, ID: id, Err: fn()}
	}
}

func describe(msg OpDoneMsg) string {
	label := string(msg.Op)
	if msg.ID != "" {
		label += " " + msg.ID
	}
	if msg.Err != nil {
		return fmt.Sprintf("%s failed: %s", label, msg.Err)
	}
	return label + " done"
}

// applyState re-selects the browsed list from s.
func (m Model) applyState(s *entity.State) Model {
	entities := m.entries.Select(s, m.path)
	items := make([]Item, len(entities))
	for i, e := range entities {
		items[i] = m.render(e)
	}
	ls, exists := entity.SelectListState(s, m.path)
	m.browse = m.browse.apply(items, ls, exists)
	return m.syncDetail()
}

// syncDetail shows the selected item in the detail viewport.
func (m Model) syncDetail() Model {
	item, ok := m.browse.Selected()
	if !ok {
		m.viewport.SetContent("")
		return m
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(item.Detail))
	return m
}

// contentHeight returns the usable height for pane content,
// accounting for border chrome, the status line and the help bar.
func (m Model) contentHeight() int {
	h := m.height - borderChrome - statusBarHeight - helpBarHeight
	if h < 1 {
		return 1
	}
	return h
}

// View renders the two-pane layout with status line and help bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	leftWidth, rightWidth := PaneWidths(m.width)
	contentHeight := m.contentHeight()

	var leftStyle, rightStyle lipgloss.Style
	if m.focus == PaneLeft {
		leftStyle = FocusedBorder()
		rightStyle = UnfocusedBorder()
	} else {
		leftStyle = UnfocusedBorder()
		rightStyle = FocusedBorder()
	}

	leftStyle = leftStyle.
		Width(leftWidth - borderChrome).
		Height(contentHeight)
	rightStyle = rightStyle.
		Width(rightWidth - borderChrome).
		Height(contentHeight)

	leftPane := leftStyle.Render(m.browse.View(leftWidth-borderChrome, contentHeight, m.spinner.View()))
	rightPane := rightStyle.Render(m.viewport.View())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
	helpView := m.help.View(HelpBindings(m.browse.state.Next != ""))

	return lipgloss.JoinVertical(lipgloss.Left, panes, m.statusLine(), helpView)
}

// statusLine shows the list title, its counts and the last operation outcome.
func (m Model) statusLine() string {
	line := titleText.Render(m.title) + " " + CountBadge(len(m.browse.items), m.browse.state.TotalCount)
	if m.inFlight > 0 {
		line += " " + m.spinner.View()
	}
	if m.status != "" {
		status := mutedText.Render(m.status)
		if m.statusErr {
			status = errorText.Render(m.status)
		}
		line += "  " + status
	}
	return line
}
