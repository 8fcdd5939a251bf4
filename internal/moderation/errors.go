package moderation

import (
	"errors"
	"fmt"

	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/model"
)

var (
	// ErrActionUnavailable is returned when the note does not offer the
	// requested action.
	ErrActionUnavailable = errors.New("action not offered by note")

	// ErrInvalidReply is returned when a reply lacks a blog id, a
	// comment id or content.
	ErrInvalidReply = errors.New("invalid reply parameters")

	// ErrUnknownNote is returned when the note is not in the feed. It is
	// the feed's own sentinel, so errors.Is matches either name.
	ErrUnknownNote = feed.ErrUnknownNote

	// errNoteGone ends a confirmation when a reload evicts the note.
	errNoteGone = errors.New("note removed from feed during confirmation")
)

// ActionError reports a mutation the service rejected or that could not
// be delivered. The workflow has already returned to its previous state.
type ActionError struct {
	Kind   model.ActionKind
	NoteID model.NoteID
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s on note %d: %v", e.Kind, e.NoteID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
