package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
)

// PerformCall records one FakeAPI.Perform call.
type PerformCall struct {
	Path string
	Body map[string]any
}

// ReplyCall records one FakeAPI.Reply call.
type ReplyCall struct {
	BlogID    int64
	CommentID int64
	Content   string
}

// FakeAPI is a scripted source.API. Each hook, when set, answers the
// matching call; unset hooks succeed with an empty result. All calls are
// recorded.
type FakeAPI struct {
	GetNotesFunc func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error)
	MarkSeenFunc func(ctx context.Context, ts model.Timestamp) error
	MarkReadFunc func(ctx context.Context, counts map[model.NoteID]model.Unread) error
	PerformFunc  func(ctx context.Context, path string, body map[string]any) error
	ReplyFunc    func(ctx context.Context, blogID, commentID int64, content string) error

	mu       sync.Mutex
	queries  []source.NotesQuery
	seen     []model.Timestamp
	reads    []map[model.NoteID]model.Unread
	performs []PerformCall
	replies  []ReplyCall
}

var _ source.API = (*FakeAPI)(nil)

func (f *FakeAPI) GetNotes(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.GetNotesFunc != nil {
		return f.GetNotesFunc(ctx, q)
	}
	return &source.NotesPage{}, nil
}

func (f *FakeAPI) MarkSeen(ctx context.Context, ts model.Timestamp) error {
	f.mu.Lock()
	f.seen = append(f.seen, ts)
	f.mu.Unlock()
	if f.MarkSeenFunc != nil {
		return f.MarkSeenFunc(ctx, ts)
	}
	return nil
}

func (f *FakeAPI) MarkRead(ctx context.Context, counts map[model.NoteID]model.Unread) error {
	f.mu.Lock()
	f.reads = append(f.reads, counts)
	f.mu.Unlock()
	if f.MarkReadFunc != nil {
		return f.MarkReadFunc(ctx, counts)
	}
	return nil
}

func (f *FakeAPI) Perform(ctx context.Context, path string, body map[string]any) error {
	f.mu.Lock()
	f.performs = append(f.performs, PerformCall{Path: path, Body: body})
	f.mu.Unlock()
	if f.PerformFunc != nil {
		return f.PerformFunc(ctx, path, body)
	}
	return nil
}

func (f *FakeAPI) Reply(ctx context.Context, blogID, commentID int64, content string) error {
	f.mu.Lock()
	f.replies = append(f.replies, ReplyCall{BlogID: blogID, CommentID: commentID, Content: content})
	f.mu.Unlock()
	if f.ReplyFunc != nil {
		return f.ReplyFunc(ctx, blogID, commentID, content)
	}
	return nil
}

// Queries returns the listing queries received so far.
func (f *FakeAPI) Queries() []source.NotesQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]source.NotesQuery(nil), f.queries...)
}

// Seen returns the timestamps sent to MarkSeen.
func (f *FakeAPI) Seen() []model.Timestamp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Timestamp(nil), f.seen...)
}

// Reads returns the counts sent to MarkRead.
func (f *FakeAPI) Reads() []map[model.NoteID]model.Unread {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[model.NoteID]model.Unread(nil), f.reads...)
}

// Performs returns the mutations sent so far.
func (f *FakeAPI) Performs() []PerformCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PerformCall(nil), f.performs...)
}

// Replies returns the replies sent so far.
func (f *FakeAPI) Replies() []ReplyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ReplyCall(nil), f.replies...)
}

// RawNote decodes a wire-format note literal, failing the test on error.
func RawNote(t *testing.T, js string) model.RawNote {
	t.Helper()

	var r model.RawNote
	if err := json.Unmarshal([]byte(js), &r); err != nil {
		t.Fatalf("decoding raw note %s: %v", js, err)
	}
	return r
}

// Page wraps raw notes in a listing response.
func Page(notes ...model.RawNote) *source.NotesPage {
	return &source.NotesPage{Notes: notes}
}
