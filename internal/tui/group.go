package tui

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/hearth/internal/health"
	"github.com/firefly-engineering/hearth/internal/store"
)

var sectionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("241")).
	PaddingLeft(2)

// gameSection labels the servers of one game. The cursor never rests on it.
type gameSection struct {
	game  string
	count int
}

func (s gameSection) FilterValue() string { return "" }
func (s gameSection) Title() string       { return fmt.Sprintf("%s (%d)", s.game, s.count) }
func (s gameSection) Description() string { return "" }

// sectionedItems orders servers by game then name, opening each game
// with a gameSection.
func sectionedItems(servers []*store.Server, status map[string]health.Status) []list.Item {
	if len(servers) == 0 {
		return nil
	}

	sorted := slices.Clone(servers)
	slices.SortStableFunc(sorted, func(a, b *store.Server) int {
		return cmp.Or(cmp.Compare(a.GameKey, b.GameKey), cmp.Compare(a.Name, b.Name))
	})

	items := make([]list.Item, 0, len(sorted)+4)
	for start := 0; start < len(sorted); {
		game := sorted[start].GameKey
		end := start
		for end < len(sorted) && sorted[end].GameKey == game {
			end++
		}
		items = append(items, gameSection{game: game, count: end - start})
		for _, srv := range sorted[start:end] {
			items = append(items, serverItem{server: srv, health: status[srv.ID]})
		}
		start = end
	}
	return items
}

// sectionDelegate draws gameSection rows itself and everything else with
// the default delegate.
type sectionDelegate struct {
	list.DefaultDelegate
}

func newSectionDelegate() sectionDelegate {
	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = selectedStyle
	d.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	return sectionDelegate{DefaultDelegate: d}
}

func (d sectionDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d sectionDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	if s, ok := item.(gameSection); ok {
		fmt.Fprint(w, sectionStyle.Render(s.Title()))
		return
	}
	d.DefaultDelegate.Render(w, m, index, item)
}

func isSection(item list.Item) bool {
	_, ok := item.(gameSection)
	return ok
}

// stepOffSection moves the cursor from a gameSection to the nearest
// server, trying step first (+1 down, -1 up) and wrapping if needed.
func stepOffSection(l *list.Model, step int) {
	items := l.Items()
	n := len(items)
	if n == 0 || !isSection(items[l.Index()]) {
		return
	}
	at := l.Index()
	for _, s := range []int{step, -step} {
		for i := 1; i < n; i++ {
			j := at + i*s
			if j < 0 || j >= n {
				break
			}
			if !isSection(items[j]) {
				l.Select(j)
				return
			}
		}
	}
}

// keyStep is -1 for keys that move the cursor up and +1 otherwise.
func keyStep(msg tea.KeyMsg) int {
	if k := msg.String(); k == "up" || k == "k" {
		return -1
	}
	return 1
}
