package moderation

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/notefeed/internal/model"
)

// actionTimeout bounds a mutation request started from the keyboard.
const actionTimeout = 30 * time.Second

// ActionStartedMsg is sent once a keyboard-triggered action has been
// accepted or rejected by the service. Confirmation is nil when Err is
// set and for the reply action, which only opens the composer.
type ActionStartedMsg struct {
	NoteID       model.NoteID
	Kind         model.ActionKind
	Confirmation *Confirmation
	Err          error
}

// ConfirmationMsg is sent when a confirmation task ends.
type ConfirmationMsg struct {
	NoteID  model.NoteID
	Kind    model.ActionKind
	Outcome Outcome
}

// ReplyOpenedMsg is sent when the reply shortcut opened the composer.
type ReplyOpenedMsg struct {
	NoteID model.NoteID
	Draft  string
}

// HandleKey maps a key press to an action. Shortcuts are live only while
// the workflow is idle and not disposed; handled reports whether msg was
// consumed.
func (w *Workflow) HandleKey(msg tea.KeyMsg) (cmd tea.Cmd, handled bool) {
	w.mu.Lock()
	live := !w.disposed && w.stateLocked() == StateIdle
	w.mu.Unlock()
	if !live {
		return nil, false
	}

	note, ok := w.deps.Notes.Get(w.id)
	if !ok {
		return nil, false
	}

	for _, t := range w.deps.Keys.Toggles() {
		if !key.Matches(msg, t.Binding) {
			continue
		}
		kind, ok := t.Resolve(note)
		if !ok {
			return nil, false
		}
		if kind == model.ActionReplyToComment {
			if err := w.OpenReply(); err != nil {
				return nil, false
			}
			id, draft := w.id, w.Draft()
			return func() tea.Msg {
				return ReplyOpenedMsg{NoteID: id, Draft: draft}
			}, true
		}
		return w.invokeCmd(kind), true
	}
	return nil, false
}

// invokeCmd runs Invoke off the update loop.
func (w *Workflow) invokeCmd(kind model.ActionKind) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		c, err := w.Invoke(ctx, kind)
		return ActionStartedMsg{NoteID: w.id, Kind: kind, Confirmation: c, Err: err}
	}
}

// SubmitReplyCmd runs SubmitReply off the update loop.
func (w *Workflow) SubmitReplyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		c, err := w.SubmitReply(ctx, text)
		return ActionStartedMsg{NoteID: w.id, Kind: model.ActionReplyToComment, Confirmation: c, Err: err}
	}
}

// WaitCmd waits for c to finish and reports its outcome.
func WaitCmd(id model.NoteID, c *Confirmation) tea.Cmd {
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		return ConfirmationMsg{NoteID: id, Kind: c.Kind(), Outcome: c.Outcome()}
	}
}
