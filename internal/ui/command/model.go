package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notefeed/internal/theme"
)

// CommandMsg is emitted with the resolved name of an executed command.
type CommandMsg string

// CancelMsg is emitted when the palette is dismissed.
type CancelMsg struct{}

// Model is the command palette. It accepts the names it was built with,
// or any unambiguous prefix of one.
type Model struct {
	input    textinput.Model
	commands []string
	errMsg   string
	width    int
	height   int
}

// New creates a palette over commands.
func New(commands []string, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "refresh, seen, bodies, a filter name..."
	ti.ShowSuggestions = true
	ti.SetSuggestions(commands)
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:    ti,
		commands: commands,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Resolve maps input to a command name. Exact names win; otherwise the
// input must prefix exactly one name.
func (m Model) Resolve(input string) (string, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	matches := m.matching(input)
	for _, c := range matches {
		if c == input {
			return c, nil
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("unknown command %q", input)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous: %s", input, strings.Join(matches, ", "))
	}
}

func (m Model) matching(prefix string) []string {
	var out []string
	for _, c := range m.commands {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			m.input.Reset()
			m.errMsg = ""
			return m, func() tea.Msg { return CancelMsg{} }

		case "enter":
			value := m.input.Value()
			if strings.TrimSpace(value) == "" {
				return m, nil
			}
			name, err := m.Resolve(value)
			if err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.input.Reset()
			m.errMsg = ""
			return m, func() tea.Msg { return CommandMsg(name) }
		}
		m.errMsg = ""
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the palette with the commands matching the current input.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	lines := []string{titleStyle.Render("Command"), m.input.View(), ""}

	if m.errMsg != "" {
		lines = append(lines, theme.ErrorStyle.Render(m.errMsg))
	} else {
		prefix := strings.ToLower(strings.TrimSpace(m.input.Value()))
		lines = append(lines, theme.HelpStyle.Render(strings.Join(m.matching(prefix), " · ")))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
