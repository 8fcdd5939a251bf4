package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notefeed/internal/keys"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/theme"
)

// Model is the help overlay: key bindings, palette commands and what
// each filter tab contains. It scrolls when the terminal is short.
type Model struct {
	keys     *keys.KeyMap
	help     help.Model
	viewport viewport.Model
	commands []string
	width    int
	height   int
}

// New creates a new help view model.
func New(k *keys.KeyMap, commands []string, width, height int) Model {
	m := Model{
		keys:     k,
		help:     help.New(),
		viewport: viewport.New(width, height),
		commands: commands,
	}
	m.help.ShowAll = true
	m.SetSize(width, height)
	return m
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update scrolls the overlay.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the help overlay.
func (m Model) View() string {
	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(m.viewport.View())
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
	m.viewport.Width = width - 6
	m.viewport.Height = max(height-6, 1)
	m.viewport.SetContent(m.content())
}

func (m Model) content() string {
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	sections := []string{
		heading.Render("Keys"),
		m.help.View(m.keys),
		"",
		heading.Render("Filters"),
		filterLegend(),
	}
	if len(m.commands) > 0 {
		sections = append(sections, "",
			heading.Render("Commands"),
			theme.HelpStyle.Render(": "+strings.Join(m.commands, "  ")),
			theme.HelpStyle.Render("any unambiguous prefix works"),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// filterLegend describes each tab by the note types it shows.
func filterLegend() string {
	rows := []string{
		fmt.Sprintf("%-8s %s", model.FilterLatest, "every note, newest first"),
		fmt.Sprintf("%-8s %s", model.FilterUnread, "notes not yet read"),
	}
	for _, c := range model.Categories {
		types, _ := model.CategoryTypes(c)
		rows = append(rows, fmt.Sprintf("%-8s %s", c, strings.Join(types, ", ")))
	}
	return theme.HelpStyle.Render(strings.Join(rows, "\n"))
}
