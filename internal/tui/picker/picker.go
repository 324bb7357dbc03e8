// Package picker provides an interactive capability selector for one-shot
// dispatch when no capability argument is given on the command line.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/switchboard/internal/catalog"
)

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

type item struct {
	capability string
	desc       string
}

func (i item) Title() string       { return i.capability }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.capability }

type Model struct {
	list     list.Model
	choice   string
	quitting bool
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if i, ok := m.list.SelectedItem().(item); ok {
				m.choice = i.capability
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.choice != "" {
		return quitTextStyle.Render(fmt.Sprintf("Dispatching %s...", m.choice))
	}
	return "\n" + m.list.View()
}

// New builds a capability picker from the catalog. The description of each
// entry shows the candidate chain in dispatch order. The selection is read
// from the final model returned by the program, via Choice.
func New(cat *catalog.Catalog) Model {
	var items []list.Item

	for _, capability := range cat.Capabilities() {
		names := make([]string, 0, 4)
		for _, h := range cat.Lookup(capability) {
			names = append(names, h.Metadata().Name)
		}
		items = append(items, item{
			capability: capability,
			desc:       strings.Join(names, ", "),
		})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select a capability to dispatch (Enter to confirm)"
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return Model{list: l}
}

// Choice returns the selected capability, or "" if the picker was cancelled.
func (m Model) Choice() string {
	return m.choice
}
