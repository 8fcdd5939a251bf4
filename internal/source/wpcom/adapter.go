package wpcom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
)

// Adapter implements source.API for the WordPress.com notifications API.
type Adapter struct {
	client *Client
}

var _ source.API = (*Adapter)(nil)

// NewAdapter creates a new notifications adapter.
func NewAdapter(baseURL, token string, timeout time.Duration) *Adapter {
	return &Adapter{client: NewClient(baseURL, token, timeout)}
}

// GetNotes lists notifications. The trap flag asks the service to report
// subject-less notes rather than silently omitting them, which lets the
// feed evict notes that are no longer valid.
func (a *Adapter) GetNotes(
	ctx context.Context,
	q source.NotesQuery,
) (*source.NotesPage, error) {
	var page source.NotesPage
	if err := a.client.Get(ctx, "/notifications/", encodeQuery(q), &page); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return &page, nil
}

// encodeQuery renders the listing filters, omitting zero values.
func encodeQuery(q source.NotesQuery) url.Values {
	v := url.Values{}
	v.Set("trap", "true")
	if q.Fields != "" {
		v.Set("fields", q.Fields)
	}
	if q.Number > 0 {
		v.Set("number", strconv.Itoa(q.Number))
	}
	if q.Before > 0 {
		v.Set("before", strconv.FormatInt(int64(q.Before), 10))
	}
	if q.Since > 0 {
		v.Set("since", strconv.FormatInt(int64(q.Since), 10))
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Unread != nil {
		v.Set("unread", strconv.FormatBool(*q.Unread))
	}
	for i, id := range q.IDs {
		v.Set(fmt.Sprintf("ids[%d]", i), id.String())
	}
	return v
}

// MarkSeen records the newest seen timestamp.
func (a *Adapter) MarkSeen(ctx context.Context, ts model.Timestamp) error {
	payload := map[string]int64{"time": int64(ts)}
	if err := a.client.Post(ctx, "/notifications/seen", payload, nil); err != nil {
		return fmt.Errorf("marking notifications seen at %d: %w", ts, err)
	}
	return nil
}

// MarkRead acknowledges unread counts. Notes with nothing unread are
// skipped; when nothing is left no request is made.
func (a *Adapter) MarkRead(
	ctx context.Context,
	counts map[model.NoteID]model.Unread,
) error {
	payload := make(map[string]int64, len(counts))
	for id, n := range counts {
		if n > 0 {
			payload[id.String()] = int64(n)
		}
	}
	if len(payload) == 0 {
		return nil
	}

	body := map[string]any{"counts": payload}
	if err := a.client.Post(ctx, "/notifications/read", body, nil); err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}

// Perform posts an action's mutation. The path comes from the action's
// rest_path parameter and is relative to the API root.
func (a *Adapter) Perform(
	ctx context.Context,
	path string,
	body map[string]any,
) error {
	if path == "" {
		return fmt.Errorf("performing action: empty rest path")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if body == nil {
		body = map[string]any{}
	}

	var resp json.RawMessage
	if err := a.client.Post(ctx, path, body, &resp); err != nil {
		return fmt.Errorf("performing action %s: %w", path, err)
	}
	return rejection(path, resp)
}

// Reply posts a reply to a comment.
func (a *Adapter) Reply(
	ctx context.Context,
	blogID, commentID int64,
	content string,
) error {
	path := fmt.Sprintf("/sites/%d/comments/%d/replies/new", blogID, commentID)
	payload := map[string]string{"content": content}

	var resp json.RawMessage
	if err := a.client.Post(ctx, path, payload, &resp); err != nil {
		return fmt.Errorf("replying to comment %d: %w", commentID, err)
	}
	return rejection(path, resp)
}

// rejection turns a bare JSON string response into an error. The API
// answers some refused mutations with a 200 and an explanation string.
func rejection(path string, resp json.RawMessage) error {
	var msg string
	if len(resp) > 0 && json.Unmarshal(resp, &msg) == nil {
		return &source.RejectedError{Path: path, Message: msg}
	}
	return nil
}
