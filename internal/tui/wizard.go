package tui

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/hearth/internal/games"
)

// AddOptions are the answers collected by the new-server wizard.
type AddOptions struct {
	Name      string
	Game      string
	MemoryMiB int64
	CPUShares int64
}

// wizardStep identifies the current step.
type wizardStep int

const (
	stepGame wizardStep = iota
	stepName
	stepResources
	stepConfirm
)

// resourceField identifies a field in the resources step.
type resourceField int

const (
	resMemory resourceField = iota
	resCPU
	resFieldCount
)

// wizardModel drives the multi-step server wizard.
type wizardModel struct {
	step wizardStep

	gameList list.Model
	games    []*games.Descriptor

	nameInput textinput.Model

	resCursor   resourceField
	memoryInput textinput.Model
	cpuInput    textinput.Model
	resErr      string

	selectedGame string
	selectedName string

	width  int
	height int
}

// gameItem implements list.Item for game selection.
type gameItem struct {
	key         string
	description string
}

func (g gameItem) Title() string       { return g.key }
func (g gameItem) Description() string { return g.description }
func (g gameItem) FilterValue() string { return g.key }

var (
	wizardTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				MarginBottom(1)

	wizardStepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	wizardActiveStepStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	wizardLabelStyle = lipgloss.NewStyle().
				Bold(true).
				MarginBottom(1)

	wizardValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	wizardDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func newWizardModel(descriptors []*games.Descriptor) wizardModel {
	ni := textinput.New()
	ni.Placeholder = "server-name"
	ni.CharLimit = 63
	ni.Width = 40

	mi := textinput.New()
	mi.Placeholder = "0 (unlimited)"
	mi.CharLimit = 8
	mi.Width = 20

	ci := textinput.New()
	ci.Placeholder = "0 (default)"
	ci.CharLimit = 6
	ci.Width = 20

	w := wizardModel{
		step:        stepGame,
		games:       descriptors,
		nameInput:   ni,
		memoryInput: mi,
		cpuInput:    ci,
	}
	w.loadGames()
	return w
}

func (w *wizardModel) Init() tea.Cmd {
	return nil
}

// Update processes a message and returns (done, addOptions, cmd).
// done=true with non-nil opts means the wizard completed.
// done=true with nil opts means it was cancelled.
func (w *wizardModel) Update(msg tea.Msg) (bool, *AddOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyCtrlC:
			return true, nil, nil
		case tea.KeyEsc:
			return w.handleBack()
		}
	}
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		w.width, w.height = size.Width, size.Height
	}

	switch w.step {
	case stepGame:
		return w.updateGame(msg)
	case stepName:
		return w.updateName(msg)
	case stepResources:
		return w.updateResources(msg)
	case stepConfirm:
		return w.updateConfirm(msg)
	}

	return false, nil, nil
}

func (w *wizardModel) handleBack() (bool, *AddOptions, tea.Cmd) {
	switch w.step {
	case stepGame:
		return true, nil, nil
	case stepName:
		w.step = stepGame
		w.nameInput.Blur()
		return false, nil, nil
	case stepResources, stepConfirm:
		w.blurResources()
		w.step = stepName
		w.nameInput.Focus()
		return false, nil, textinput.Blink
	}
	return false, nil, nil
}

func (w *wizardModel) updateGame(msg tea.Msg) (bool, *AddOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		if item, ok := w.gameList.SelectedItem().(gameItem); ok {
			w.selectedGame = item.key
			w.step = stepName
			w.nameInput.Focus()
			if w.nameInput.Value() == "" {
				w.nameInput.SetValue(suggestName(item.key))
			}
			return false, nil, textinput.Blink
		}
		return false, nil, nil
	}

	var cmd tea.Cmd
	w.gameList, cmd = w.gameList.Update(msg)
	return false, nil, cmd
}

func (w *wizardModel) updateName(msg tea.Msg) (bool, *AddOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter, tea.KeyCtrlA:
			name := strings.TrimSpace(w.nameInput.Value())
			if name == "" {
				return false, nil, nil
			}
			w.selectedName = name
			w.nameInput.Blur()
			if keyMsg.Type == tea.KeyCtrlA {
				w.step = stepResources
				return false, nil, w.focusResource()
			}
			w.step = stepConfirm
			return false, nil, nil
		}
	}

	var cmd tea.Cmd
	w.nameInput, cmd = w.nameInput.Update(msg)
	return false, nil, cmd
}

func (w *wizardModel) activeResource() *textinput.Model {
	if w.resCursor == resCPU {
		return &w.cpuInput
	}
	return &w.memoryInput
}

func (w *wizardModel) blurResources() {
	w.memoryInput.Blur()
	w.cpuInput.Blur()
}

func (w *wizardModel) focusResource() tea.Cmd {
	w.blurResources()
	w.activeResource().Focus()
	return textinput.Blink
}

func (w *wizardModel) updateResources(msg tea.Msg) (bool, *AddOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			if _, _, err := w.resources(); err != nil {
				w.resErr = err.Error()
				return false, nil, nil
			}
			w.resErr = ""
			w.blurResources()
			w.step = stepConfirm
			return false, nil, nil
		case tea.KeyUp:
			w.resCursor = (w.resCursor - 1 + resFieldCount) % resFieldCount
			return false, nil, w.focusResource()
		case tea.KeyDown, tea.KeyTab:
			w.resCursor = (w.resCursor + 1) % resFieldCount
			return false, nil, w.focusResource()
		}
	}

	ti := w.activeResource()
	var cmd tea.Cmd
	*ti, cmd = ti.Update(msg)
	return false, nil, cmd
}

// resources parses the resource inputs. Empty means zero.
func (w *wizardModel) resources() (memory, cpu int64, err error) {
	parse := func(name, v string) (int64, error) {
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s must be a non-negative integer", name)
		}
		return n, nil
	}
	if memory, err = parse("memory", w.memoryInput.Value()); err != nil {
		return 0, 0, err
	}
	if cpu, err = parse("cpu shares", w.cpuInput.Value()); err != nil {
		return 0, 0, err
	}
	return memory, cpu, nil
}

func (w *wizardModel) updateConfirm(msg tea.Msg) (bool, *AddOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter", "y":
			memory, cpu, err := w.resources()
			if err != nil {
				w.resErr = err.Error()
				w.step = stepResources
				return false, nil, w.focusResource()
			}
			return true, &AddOptions{
				Name:      w.selectedName,
				Game:      w.selectedGame,
				MemoryMiB: memory,
				CPUShares: cpu,
			}, nil
		case "n":
			w.step = stepGame
			w.selectedGame = ""
			w.selectedName = ""
			w.nameInput.SetValue("")
			w.memoryInput.SetValue("")
			w.cpuInput.SetValue("")
			w.resErr = ""
			return false, nil, nil
		}
	}
	return false, nil, nil
}

func (w *wizardModel) View() string {
	var b strings.Builder

	b.WriteString(wizardTitleStyle.Render("Add Game Server"))
	b.WriteString("\n")
	b.WriteString(w.progressBar())
	b.WriteString("\n\n")

	switch w.step {
	case stepGame:
		b.WriteString(wizardLabelStyle.Render("Select game:"))
		b.WriteString("\n")
		b.WriteString(w.gameList.View())
	case stepName:
		b.WriteString(wizardLabelStyle.Render("Server name:"))
		b.WriteString("\n")
		b.WriteString(w.nameInput.View())
		b.WriteString("\n\n")
		b.WriteString(wizardDimStyle.Render("Enter to confirm, Ctrl+A for resource limits."))
	case stepResources:
		b.WriteString(wizardLabelStyle.Render("Resource limits:"))
		b.WriteString("\n\n")
		b.WriteString(w.renderInput(resMemory, "Memory (MiB)", &w.memoryInput))
		b.WriteString("\n")
		b.WriteString(w.renderInput(resCPU, "CPU shares", &w.cpuInput))
		b.WriteString("\n\n")
		if w.resErr != "" {
			b.WriteString(failureStyle.Render(w.resErr))
			b.WriteString("\n")
		}
		b.WriteString(wizardDimStyle.Render("Tab to switch, Enter to continue, Esc to go back."))
	case stepConfirm:
		b.WriteString(wizardLabelStyle.Render("Confirm:"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("  Game:   %s\n", wizardValueStyle.Render(w.selectedGame)))
		b.WriteString(fmt.Sprintf("  Name:   %s\n", wizardValueStyle.Render(w.selectedName)))
		if v := strings.TrimSpace(w.memoryInput.Value()); v != "" {
			b.WriteString(fmt.Sprintf("  Memory: %s\n", wizardValueStyle.Render(v+" MiB")))
		}
		if v := strings.TrimSpace(w.cpuInput.Value()); v != "" {
			b.WriteString(fmt.Sprintf("  CPU:    %s\n", wizardValueStyle.Render(v+" shares")))
		}
		b.WriteString("\n")
		b.WriteString(wizardDimStyle.Render("Enter to add, n to restart, Esc to go back."))
	}

	return b.String()
}

func (w *wizardModel) progressBar() string {
	names := []string{"Game", "Name", "Confirm"}

	current := int(w.step)
	switch w.step {
	case stepResources:
		current = int(stepName)
	case stepConfirm:
		current = 2
	}

	parts := make([]string, len(names))
	for i, name := range names {
		label := fmt.Sprintf("%d. %s", i+1, name)
		if i == current {
			parts[i] = wizardActiveStepStyle.Render(label)
		} else {
			parts[i] = wizardStepStyle.Render(label)
		}
	}
	return strings.Join(parts, wizardDimStyle.Render(" > "))
}

func (w *wizardModel) renderInput(field resourceField, name string, ti *textinput.Model) string {
	cursor := " "
	if w.resCursor == field {
		cursor = ">"
		return selectedStyle.Render(fmt.Sprintf("  %s %s: %s", cursor, name, ti.View()))
	}
	val := strings.TrimSpace(ti.Value())
	if val == "" {
		val = "(not set)"
	}
	return fmt.Sprintf("  %s %s: %s", cursor, name, val)
}

func (w *wizardModel) loadGames() {
	items := make([]list.Item, 0, len(w.games))
	for _, g := range w.games {
		desc := g.Name
		if g.IsCustom() {
			desc += " (startup script)"
		} else {
			desc += " | " + g.Image
		}
		items = append(items, gameItem{key: g.Key, description: desc})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 60, 12)
	l.Title = ""
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	w.gameList = l
}

// sanitizeNameRegex matches characters not valid in server names.
var sanitizeNameRegex = regexp.MustCompile(`[^a-z0-9_-]`)

// suggestName derives a default server name from a game key.
func suggestName(game string) string {
	base := strings.ToLower(game)
	base = sanitizeNameRegex.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "server"
	}
	return base + "-1"
}
