package notelist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/theme"
	"github.com/nhle/notefeed/internal/ui/notetext"
)

// NoteItem wraps a model.Note so it can be used in a bubbles/list.
type NoteItem struct {
	Note model.Note
	// New marks notes newer than the seen high-water mark.
	New bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i NoteItem) FilterValue() string { return i.Title() }

// Title returns the plain-text subject.
func (i NoteItem) Title() string {
	if i.Note.Subject == nil {
		return ""
	}
	if i.Note.Subject.Text != "" {
		return i.Note.Subject.Text
	}
	return notetext.Line(i.Note.Subject.HTML)
}

// Description returns a short summary line for the list.
func (i NoteItem) Description() string {
	parts := []string{i.Note.Type, relativeTime(i.Note.Timestamp)}
	if i.Note.ApprovalStatus != "" {
		parts = append(parts, i.Note.ApprovalStatus)
	}
	return strings.Join(parts, " | ")
}

// NoteDelegate implements list.ItemDelegate for rendering notes.
type NoteDelegate struct{}

// Height returns the number of lines each item takes.
func (d NoteDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d NoteDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d NoteDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single note row: glyph, unread marker, subject, age.
func (d NoteDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NoteItem)
	if !ok {
		return
	}
	n := ni.Note

	noticon := n.Noticon
	if noticon == "" {
		noticon = model.Noticon(n.Type)
	}
	glyph := theme.NoticonStyle(noticon).Render(theme.NoticonGlyph(noticon))

	marker := " "
	if ni.New {
		marker = lipgloss.NewStyle().Foreground(theme.ColorYellow).Render("●")
	} else if n.IsUnread() {
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("•")
	}

	age := theme.DimmedStyle.Render(relativeTime(n.Timestamp))

	width := m.Width() - lipgloss.Width(age) - 8
	title := truncate(ni.Title(), max(width, 10))
	if n.IsUnread() {
		title = theme.UnreadStyle.Render(title)
	} else {
		title = theme.DimmedStyle.Render(title)
	}

	line := fmt.Sprintf("%s %s %s  %s", glyph, marker, title, age)
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = lipgloss.NewStyle().PaddingLeft(2).Render(line)
	}
	fmt.Fprint(w, line)
}

// relativeTime renders a note timestamp as "3 minutes ago".
func relativeTime(ts model.Timestamp) string {
	if ts <= 0 {
		return ""
	}
	return humanize.Time(time.Unix(int64(ts), 0))
}

// truncate shortens s to at most n display cells.
func truncate(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > n {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
