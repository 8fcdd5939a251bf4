package wpcom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   map[string]any
}

// newTestAdapter serves reply for every request and records what it got.
func newTestAdapter(t *testing.T, reply string) (*Adapter, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	a := NewAdapter(srv.URL, "tok", 5*time.Second)
	a.client.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return a, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestGetNotesEncodesQuery(t *testing.T) {
	a, requests := newTestAdapter(t, `{
		"last_seen_time": "1700000000",
		"notes": [
			{"id": "11", "type": "comment", "unread": true, "timestamp": "1700000100", "subject": {"text": "hi"}},
			{"id": 12, "subject": null}
		]
	}`)

	unread := false
	page, err := a.GetNotes(context.Background(), source.NotesQuery{
		Fields: "id,subject",
		Number: 9,
		Before: 1700000200,
		Type:   "comment",
		Unread: &unread,
		IDs:    []model.NoteID{11, 12},
	})
	if err != nil {
		t.Fatalf("get notes: %v", err)
	}

	if page.LastSeenTime != 1700000000 {
		t.Fatalf("expected last seen 1700000000, got %d", page.LastSeenTime)
	}
	if len(page.Notes) != 2 || !page.Notes[0].Valid() || page.Notes[1].Valid() {
		t.Fatalf("unexpected notes: %+v", page.Notes)
	}
	if page.Notes[0].Unread == nil || *page.Notes[0].Unread != 1 {
		t.Fatalf("expected unread 1, got %v", page.Notes[0].Unread)
	}

	req := requests()[0]
	if req.Method != http.MethodGet || req.Path != "/notifications/" {
		t.Fatalf("unexpected request: %s %s", req.Method, req.Path)
	}
	want := map[string]string{
		"trap":   "true",
		"fields": "id,subject",
		"number": "9",
		"before": "1700000200",
		"type":   "comment",
		"unread": "false",
		"ids[0]": "11",
		"ids[1]": "12",
	}
	for k, v := range want {
		if got := req.Query[k]; len(got) != 1 || got[0] != v {
			t.Fatalf("query %s: expected %q, got %v", k, v, got)
		}
	}
	if _, ok := req.Query["since"]; ok {
		t.Fatal("expected zero since to be omitted")
	}
}

func TestMarkSeen(t *testing.T) {
	a, requests := newTestAdapter(t, `{"success":true}`)

	if err := a.MarkSeen(context.Background(), 1700000000); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	req := requests()[0]
	if req.Method != http.MethodPost || req.Path != "/notifications/seen" {
		t.Fatalf("unexpected request: %s %s", req.Method, req.Path)
	}
	if req.Body["time"] != float64(1700000000) {
		t.Fatalf("unexpected body: %v", req.Body)
	}
}

func TestMarkReadSkipsReadNotes(t *testing.T) {
	a, requests := newTestAdapter(t, `{"success":true}`)

	if err := a.MarkRead(context.Background(), map[model.NoteID]model.Unread{1: 0}); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(requests()) != 0 {
		t.Fatal("expected no request when nothing is unread")
	}

	if err := a.MarkRead(context.Background(), map[model.NoteID]model.Unread{1: 0, 2: 3}); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	req := requests()[0]
	counts, ok := req.Body["counts"].(map[string]any)
	if req.Path != "/notifications/read" || !ok || len(counts) != 1 || counts["2"] != float64(3) {
		t.Fatalf("unexpected request: %s %v", req.Path, req.Body)
	}
}

func TestPerform(t *testing.T) {
	a, requests := newTestAdapter(t, `{"ID":2,"status":"approved"}`)

	err := a.Perform(context.Background(), "sites/1/comments/2", map[string]any{"status": "approved"})
	if err != nil {
		t.Fatalf("perform: %v", err)
	}

	req := requests()[0]
	if req.Path != "/sites/1/comments/2" || req.Body["status"] != "approved" {
		t.Fatalf("unexpected request: %s %v", req.Path, req.Body)
	}

	if err := a.Perform(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPerformRejected(t *testing.T) {
	a, _ := newTestAdapter(t, `"You do not have permission to moderate this comment."`)

	err := a.Perform(context.Background(), "/sites/1/comments/2", nil)
	var rejected *source.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Path != "/sites/1/comments/2" {
		t.Fatalf("unexpected path %q", rejected.Path)
	}
}

func TestReply(t *testing.T) {
	a, requests := newTestAdapter(t, `{"ID":3}`)

	if err := a.Reply(context.Background(), 1, 2, "thanks"); err != nil {
		t.Fatalf("reply: %v", err)
	}

	req := requests()[0]
	if req.Path != "/sites/1/comments/2/replies/new" || req.Body["content"] != "thanks" {
		t.Fatalf("unexpected request: %s %v", req.Path, req.Body)
	}
}

func TestMutationsAreSentOnceOnGatewayTimeout(t *testing.T) {
	tests := []struct {
		name string
		call func(a *Adapter) error
		path string
	}{
		{
			name: "reply",
			call: func(a *Adapter) error { return a.Reply(context.Background(), 1, 2, "thanks") },
			path: "/sites/1/comments/2/replies/new",
		},
		{
			name: "perform",
			call: func(a *Adapter) error {
				return a.Perform(context.Background(), "/sites/1/comments/2", map[string]any{"status": "approved"})
			},
			path: "/sites/1/comments/2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var posts int
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				posts++
				n := posts
				mu.Unlock()
				if n == 1 {
					w.WriteHeader(http.StatusGatewayTimeout)
					return
				}
				w.Write([]byte(`{"ID":3}`))
			}))
			t.Cleanup(srv.Close)

			a := NewAdapter(srv.URL, "tok", 5*time.Second)
			a.client.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

			if err := tt.call(a); err == nil {
				t.Fatal("expected the gateway error to surface")
			}
			mu.Lock()
			defer mu.Unlock()
			if posts != 1 {
				t.Fatalf("expected one POST to %s, got %d", tt.path, posts)
			}
		})
	}
}
