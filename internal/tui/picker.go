package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/health"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionShow
	ActionStart
	ActionStop
	ActionRestart
	ActionDelete
	ActionNew
	ActionQuit
)

// JobType returns the lifecycle job an action enqueues, if any.
func (a Action) JobType() (store.JobType, bool) {
	switch a {
	case ActionStart:
		return store.JobStart, true
	case ActionStop:
		return store.JobStop, true
	case ActionRestart:
		return store.JobRestart, true
	case ActionDelete:
		return store.JobDelete, true
	}
	return "", false
}

// PickerResult holds the result of the picker
type PickerResult struct {
	Action     Action
	Server     *store.Server
	AddOptions *AddOptions
}

// PickerOptions configures the picker.
type PickerOptions struct {
	// AllowCreate enables the new-server wizard on "n".
	AllowCreate bool

	// Games are offered by the wizard.
	Games []*games.Descriptor
}

// serverItem implements list.Item for server display
type serverItem struct {
	server *store.Server
	health health.Status
}

func (i serverItem) Title() string {
	return i.server.Name
}

func (i serverItem) Description() string {
	return fmt.Sprintf("%s %s | %s | %s",
		statusIcon(i.health),
		strings.ToLower(string(i.server.Status)),
		formatPorts(i.server.Ports),
		shortID(i.server.ID),
	)
}

func (i serverItem) FilterValue() string {
	return i.server.Name + " " + i.server.GameKey
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "✓"
	case health.StatusDrift, health.StatusMissing:
		return "⚠"
	case health.StatusPending:
		return "○"
	}
	return "●"
}

func formatPorts(ports []store.PortMapping) string {
	if len(ports) == 0 {
		return "no ports"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d/%s", p.HostPort, p.Protocol)
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// pickerKeys maps keys to actions on the selected server.
var pickerKeys = map[string]Action{
	"enter": ActionShow,
	"s":     ActionStart,
	"x":     ActionStop,
	"r":     ActionRestart,
	"d":     ActionDelete,
}

// Model is the bubbletea model for the server picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	opts     PickerOptions
	wizard   *wizardModel
	width    int
	height   int
}

// NewPicker creates a new server picker. status maps server ids to their
// health; servers missing from it are shown without a health icon.
func NewPicker(servers []*store.Server, status map[string]health.Status, opts PickerOptions) Model {
	items := sectionedItems(servers, status)

	l := list.New(items, newSectionDelegate(), 80, 20)
	l.Title = "Hearth - Game Servers"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	stepOffSection(&l, 1)

	return Model{
		list: l,
		opts: opts,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.wizard != nil {
		done, add, cmd := m.wizard.Update(msg)
		if !done {
			return m, cmd
		}
		m.wizard = nil
		if add == nil {
			return m, nil
		}
		m.result = PickerResult{Action: ActionNew, AddOptions: add}
		m.quitting = true
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		key := msg.String()
		if action, ok := pickerKeys[key]; ok {
			if item, ok := m.list.SelectedItem().(serverItem); ok {
				m.result = PickerResult{Action: action, Server: item.server}
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		switch key {
		case "n":
			if !m.opts.AllowCreate {
				return m, nil
			}
			w := newWizardModel(m.opts.Games)
			w.width, w.height = m.width, m.height
			m.wizard = &w
			return m, w.Init()

		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		stepOffSection(&m.list, keyStep(msg))
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.wizard != nil {
		return m.wizard.View()
	}

	keys := "[enter] Show  [s] Start  [x] Stop  [r] Restart  [d] Delete"
	if m.opts.AllowCreate {
		keys += "  [n] New"
	}
	help := helpStyle.Render(keys + "  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive server picker
func RunPicker(servers []*store.Server, status map[string]health.Status, opts PickerOptions) (PickerResult, error) {
	if len(servers) == 0 && !opts.AllowCreate {
		return PickerResult{Action: ActionQuit}, nil
	}

	m := NewPicker(servers, status, opts)
	if len(servers) == 0 {
		w := newWizardModel(opts.Games)
		m.wizard = &w
	}
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive picker that just lists servers
func SimplePicker(servers []*store.Server, status map[string]health.Status) string {
	var sb strings.Builder

	sb.WriteString("Hearth - Game Servers\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(servers) == 0 {
		sb.WriteString("No servers found.\n")
		sb.WriteString("Create one with: hearth-ctl server add <name> --game <game>\n")
		return sb.String()
	}

	for i, srv := range servers {
		sb.WriteString(fmt.Sprintf("%d. %s %s (%s)\n",
			i+1, statusIcon(status[srv.ID]), srv.Name, srv.GameKey))
		sb.WriteString(fmt.Sprintf("   Status: %s | Ports: %s | ID: %s\n\n",
			srv.Status, formatPorts(srv.Ports), srv.ID))
	}

	return sb.String()
}
