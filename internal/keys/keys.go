package keys

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/nhle/notefeed/internal/model"
)

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Help toggle
	Help key.Binding

	// Manual refresh
	Refresh key.Binding

	// Filter views
	NextFilter key.Binding
	PrevFilter key.Binding

	// Moderation (active only while a note's workflow is idle)
	Reply   key.Binding
	Approve key.Binding
	Spam    key.Binding
	Trash   key.Binding

	// Reply composer
	SendReply  key.Binding
	CloseReply key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open note"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R", "ctrl+r"),
			key.WithHelp("R", "refresh"),
		),
		NextFilter: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next filter"),
		),
		PrevFilter: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous filter"),
		),
		Reply: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reply"),
		),
		Approve: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "approve/unapprove"),
		),
		Spam: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "spam/unspam"),
		),
		Trash: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "trash/untrash"),
		),
		SendReply: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "send reply"),
		),
		CloseReply: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close reply"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.NextFilter,
		k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.NextFilter, k.PrevFilter, k.Refresh, k.Help},
		{k.Reply, k.Approve, k.Spam, k.Trash},
		{k.SendReply, k.CloseReply},
	}
}

// Toggle binds a moderation shortcut to the actions it switches between.
// A note offers at most one kind of each pair at a time.
type Toggle struct {
	Binding key.Binding
	Kinds   []model.ActionKind
}

// Toggles returns the moderation shortcuts in display order.
func (k *KeyMap) Toggles() []Toggle {
	return []Toggle{
		{k.Reply, []model.ActionKind{model.ActionReplyToComment}},
		{k.Approve, []model.ActionKind{model.ActionApproveComment, model.ActionUnapproveComment}},
		{k.Spam, []model.ActionKind{model.ActionSpamComment, model.ActionUnspamComment}},
		{k.Trash, []model.ActionKind{model.ActionTrashComment, model.ActionUntrashComment}},
	}
}

// Resolve returns the first kind of t that n offers.
func (t Toggle) Resolve(n model.Note) (model.ActionKind, bool) {
	for _, kind := range t.Kinds {
		if _, ok := n.Action(kind); ok {
			return kind, true
		}
	}
	return "", false
}

// OfferedHints renders the shortcuts live for n, e.g. "a unapprove | t trash".
func (k *KeyMap) OfferedHints(n model.Note) string {
	var parts []string
	for _, t := range k.Toggles() {
		kind, ok := t.Resolve(n)
		if !ok {
			continue
		}
		verb, _, _ := strings.Cut(string(kind), "-")
		if kind == model.ActionReplyToComment {
			verb = "reply"
		}
		parts = append(parts, t.Binding.Help().Key+" "+verb)
	}
	return strings.Join(parts, " | ")
}
