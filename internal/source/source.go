package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/notefeed/internal/model"
)

// AuthError indicates that authentication has failed or expired.
// It is returned by clients when a 401 or 403 response is received.
type AuthError struct {
	Service string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Service, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// RejectedError is returned when the service answers a mutation with an
// explanation instead of the expected result.
type RejectedError struct {
	Path    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("request to %s rejected: %s", e.Path, e.Message)
}

// NotesQuery is the set of filters accepted by the notifications listing.
// Zero values are omitted from the request.
type NotesQuery struct {
	Fields string
	Number int
	Before model.Timestamp
	Since  model.Timestamp
	Type   string
	Unread *bool
	IDs    []model.NoteID
}

// NotesPage is one response of the notifications listing.
type NotesPage struct {
	Notes        []model.RawNote `json:"notes"`
	LastSeenTime model.Timestamp `json:"last_seen_time"`
}

// API is the remote notification service as consumed by the feed.
type API interface {
	// GetNotes lists notifications matching q.
	GetNotes(ctx context.Context, q NotesQuery) (*NotesPage, error)

	// MarkSeen records ts as the newest timestamp the user has seen.
	MarkSeen(ctx context.Context, ts model.Timestamp) error

	// MarkRead acknowledges unread counts per note.
	MarkRead(ctx context.Context, counts map[model.NoteID]model.Unread) error

	// Perform posts an action's mutation to the path supplied in the
	// action's parameters.
	Perform(ctx context.Context, path string, body map[string]any) error

	// Reply posts a reply to a comment.
	Reply(ctx context.Context, blogID, commentID int64, content string) error
}
