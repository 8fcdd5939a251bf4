package notelist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/keys"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/theme"
)

// SelectedNoteMsg is sent when the user opens a note.
type SelectedNoteMsg struct {
	NoteID model.NoteID
}

// FilterChangedMsg is sent when the user switches filter tabs.
type FilterChangedMsg struct {
	Filter string
}

// Filters are the tabs of the list, in display order.
var Filters = append([]string{model.FilterLatest, model.FilterUnread}, model.Categories...)

// Model is the notification list view.
type Model struct {
	list        list.Model
	store       *feed.Store
	keys        *keys.KeyMap
	filterIndex int
	width       int
	height      int
}

// New creates a list view over s.
func New(s *feed.Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, NoteDelegate{}, width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return Model{
		list:   l,
		store:  s,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Filter returns the active filter name.
func (m Model) Filter() string {
	return Filters[m.filterIndex]
}

// FilterIndex returns the position of the active filter in Filters.
func (m Model) FilterIndex() int {
	return m.filterIndex
}

// Refresh rebuilds the rows from the store, keeping the selection on the
// same note when it is still listed.
func (m *Model) Refresh() tea.Cmd {
	var selected model.NoteID
	if it, ok := m.list.SelectedItem().(NoteItem); ok {
		selected = it.Note.ID
	}

	notes := m.store.ByFilter(m.Filter())
	fresh := make(map[model.NoteID]bool)
	for _, n := range m.store.NewSince() {
		fresh[n.ID] = true
	}

	items := make([]list.Item, len(notes))
	index := 0
	for i, n := range notes {
		items[i] = NoteItem{Note: n, New: fresh[n.ID]}
		if n.ID == selected {
			index = i
		}
	}
	cmd := m.list.SetItems(items)
	m.list.Select(index)
	return cmd
}

// Selected returns the highlighted note id.
func (m Model) Selected() (model.NoteID, bool) {
	it, ok := m.list.SelectedItem().(NoteItem)
	if !ok {
		return 0, false
	}
	return it.Note.ID, true
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			id, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return SelectedNoteMsg{NoteID: id} }

		case key.Matches(msg, m.keys.NextFilter):
			return m.SelectFilter((m.filterIndex + 1) % len(Filters))

		case key.Matches(msg, m.keys.PrevFilter):
			return m.SelectFilter((m.filterIndex + len(Filters) - 1) % len(Filters))
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SelectFilter switches to the filter at index i of Filters.
func (m Model) SelectFilter(i int) (Model, tea.Cmd) {
	m.filterIndex = i
	m.list.ResetSelected()
	refresh := m.Refresh()
	name := m.Filter()
	return m, tea.Batch(refresh, func() tea.Msg { return FilterChangedMsg{Filter: name} })
}

// View renders the list view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when the filter matches nothing.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.store.Loading():
		return style.Render("Loading notifications...")
	case !m.store.HasLoaded():
		return style.Render("No notifications yet.\n\nPress R to refresh.")
	default:
		return style.Render("Nothing in " + m.Filter() + ".")
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
