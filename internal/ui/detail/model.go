package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notefeed/internal/keys"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/theme"
	"github.com/nhle/notefeed/internal/ui/notetext"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// SendReplyMsg asks the parent to submit the composed reply.
type SendReplyMsg struct {
	NoteID model.NoteID
	Text   string
}

// CloseReplyMsg reports that the composer was closed with Draft unsent.
type CloseReplyMsg struct {
	NoteID model.NoteID
	Draft  string
}

// composerHeight is the number of text rows of the reply box.
const composerHeight = 5

// Model is the note detail view with its reply composer.
type Model struct {
	note      *model.Note
	viewport  viewport.Model
	composer  textarea.Model
	keys      *keys.KeyMap
	replyOpen bool
	state     string
	status    string
	statusErr bool
	width     int
	height    int
}

// New creates a new detail view model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle()

	ta := textarea.New()
	ta.Placeholder = "Write a reply..."
	ta.ShowLineNumbers = false
	ta.SetHeight(composerHeight)
	ta.SetWidth(width - 4)

	return Model{
		viewport: vp,
		composer: ta,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// NoteID returns the displayed note, or 0.
func (m Model) NoteID() model.NoteID {
	if m.note == nil {
		return 0
	}
	return m.note.ID
}

// ReplyOpen reports whether the composer has focus.
func (m Model) ReplyOpen() bool {
	return m.replyOpen
}

// SetNote replaces the displayed note. The scroll position is kept when
// the same note is re-rendered after a feed change.
func (m *Model) SetNote(n model.Note) {
	same := m.note != nil && m.note.ID == n.ID
	m.note = &n
	m.viewport.SetContent(m.renderContent())
	if !same {
		m.viewport.GotoTop()
		m.status = ""
		m.statusErr = false
	}
}

// SetState shows the moderation state of the note.
func (m *Model) SetState(state string) {
	m.state = state
	m.viewport.SetContent(m.renderContent())
}

// SetStatus shows a one-line result of the last action.
func (m *Model) SetStatus(status string, isErr bool) {
	m.status = status
	m.statusErr = isErr
}

// OpenReply focuses the composer seeded with draft.
func (m *Model) OpenReply(draft string) tea.Cmd {
	m.replyOpen = true
	m.composer.SetValue(draft)
	m.resize()
	return m.composer.Focus()
}

// CloseReply hides the composer and discards its contents.
func (m *Model) CloseReply() {
	m.replyOpen = false
	m.composer.Blur()
	m.composer.Reset()
	m.resize()
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.replyOpen {
			return m.updateComposer(msg)
		}
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg { return BackMsg{} }
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updateComposer(msg tea.KeyMsg) (Model, tea.Cmd) {
	id := m.NoteID()
	switch {
	case key.Matches(msg, m.keys.SendReply):
		text := m.composer.Value()
		return m, func() tea.Msg { return SendReplyMsg{NoteID: id, Text: text} }

	case key.Matches(msg, m.keys.CloseReply):
		draft := m.composer.Value()
		m.CloseReply()
		return m, func() tea.Msg { return CloseReplyMsg{NoteID: id, Draft: draft} }
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.note == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No note selected")
	}

	parts := []string{m.viewport.View()}
	if m.status != "" {
		style := theme.HelpStyle
		if m.statusErr {
			style = theme.ErrorStyle
		}
		parts = append(parts, style.Render(m.status))
	}
	if m.replyOpen {
		parts = append(parts, theme.DetailPanelStyle.Padding(0, 1).Render(m.composer.View()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.note == nil {
		return ""
	}
	n := m.note
	var sections []string

	subject := ""
	if n.Subject != nil {
		subject = n.Subject.Text
		if subject == "" {
			subject = notetext.Plain(n.Subject.HTML)
		}
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(subject))

	// Badges line: type, approval status, workflow state
	noticon := n.Noticon
	if noticon == "" {
		noticon = model.Noticon(n.Type)
	}
	badges := []string{theme.NoticonStyle(noticon).Render(strings.ToUpper(n.Type))}
	if n.ApprovalStatus != "" {
		badges = append(badges, theme.ApprovalStyle(n.ApprovalStatus).Render(n.ApprovalStatus))
	}
	if n.HasReplied {
		badges = append(badges, theme.DimmedStyle.Render("replied"))
	}
	if m.state != "" && m.state != "idle" {
		badges = append(badges, theme.HelpStyle.Render(m.state))
	}
	sections = append(sections, strings.Join(badges, "  "))

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	if n.Timestamp > 0 {
		sections = append(sections, metaStyle.Render(
			time.Unix(int64(n.Timestamp), 0).Format("2006-01-02 15:04"),
		))
	}
	sections = append(sections, "")

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))

	if n.Body == nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("Loading body..."))
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	body := n.Body
	if body.Header != "" {
		sections = append(sections, notetext.Plain(body.Header), "")
	}
	for _, item := range body.Items {
		if item.Header != "" {
			sections = append(sections, lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).
				Render(notetext.Plain(item.Header)))
		}
		if item.HTML != "" {
			sections = append(sections, notetext.Plain(item.HTML))
		}
		sections = append(sections, "")
	}
	if body.HTML != "" {
		sections = append(sections, notetext.Plain(body.HTML), "")
	}

	if len(body.Actions) > 0 {
		sections = append(sections, separator, "")
		labels := make([]string, 0, len(body.Actions))
		for _, a := range body.Actions {
			labels = append(labels, fmt.Sprintf("[%s] %s", actionKey(a.Kind), a.Label()))
		}
		sections = append(sections, theme.HelpStyle.Render(strings.Join(labels, "   ")))
	}
	if body.Footer != "" {
		sections = append(sections, "", metaStyle.Render(notetext.Plain(body.Footer)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// actionKey returns the shortcut bound to an action kind.
func actionKey(kind model.ActionKind) string {
	switch kind {
	case model.ActionReplyToComment:
		return "r"
	case model.ActionApproveComment, model.ActionUnapproveComment:
		return "a"
	case model.ActionSpamComment, model.ActionUnspamComment:
		return "s"
	case model.ActionTrashComment, model.ActionUntrashComment:
		return "t"
	default:
		return "?"
	}
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.composer.SetWidth(width - 6)
	m.resize()
}

func (m *Model) resize() {
	h := m.height - 1
	if m.replyOpen {
		h -= composerHeight + 2
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(h, 1)
	m.viewport.SetContent(m.renderContent())
}
