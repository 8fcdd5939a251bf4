package model

import (
	"encoding/json"
	"testing"
)

func decodeRaw(t *testing.T, js string) RawNote {
	t.Helper()

	var r RawNote
	if err := json.Unmarshal([]byte(js), &r); err != nil {
		t.Fatalf("decode raw note: %v", err)
	}
	return r
}

func TestFlexIntegers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{name: "number", in: `42`, want: 42},
		{name: "string", in: `"42"`, want: 42},
		{name: "true", in: `true`, want: 1},
		{name: "false", in: `false`, want: 0},
		{name: "null", in: `null`, want: 0},
		{name: "empty string", in: `""`, want: 0},
		{name: "float string", in: `"1357000000.0"`, want: 1357000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u Unread
			if err := json.Unmarshal([]byte(tt.in), &u); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if int64(u) != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, u)
			}
		})
	}
}

func TestFlexIntegerRejectsGarbage(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"soon"`), &ts); err == nil {
		t.Fatal("expected error for non-numeric timestamp")
	}
}

func TestRawNoteValid(t *testing.T) {
	tests := []struct {
		name string
		js   string
		want bool
	}{
		{name: "subject object", js: `{"id":1,"subject":{"text":"hi"}}`, want: true},
		{name: "missing subject", js: `{"id":1}`, want: false},
		{name: "null subject", js: `{"id":1,"subject":null}`, want: false},
		{name: "string subject", js: `{"id":1,"subject":"hi"}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeRaw(t, tt.js).Valid(); got != tt.want {
				t.Fatalf("expected valid %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewNoteRequiresSubject(t *testing.T) {
	if _, err := NewNote(decodeRaw(t, `{"id":1,"type":"like"}`)); err == nil {
		t.Fatal("expected error for note without subject")
	}
}

func TestApplyOverwritesOnlyPresentFields(t *testing.T) {
	n, err := NewNote(decodeRaw(t, `{
		"id": "7",
		"type": "comment",
		"unread": true,
		"timestamp": "100",
		"subject": {"text": "first"},
		"approval_status": "unapproved"
	}`))
	if err != nil {
		t.Fatalf("new note: %v", err)
	}
	n.QueriedTypes = map[string]bool{FilterLatest: true}

	changed, err := n.Apply(decodeRaw(t, `{"id":7,"subject":{"text":"first"},"unread":0}`))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !changed {
		t.Fatal("expected unread change to be reported")
	}
	if n.Unread != 0 {
		t.Fatalf("expected unread 0, got %d", n.Unread)
	}
	if n.Type != TypeComment || n.Timestamp != 100 || n.ApprovalStatus != "unapproved" {
		t.Fatalf("absent fields were overwritten: %+v", n)
	}
	if !n.QueriedTypes[FilterLatest] {
		t.Fatal("expected queried types to be preserved")
	}

	changed, err = n.Apply(decodeRaw(t, `{"id":7,"subject":{"text":"first"},"type":"comment"}`))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if changed {
		t.Fatal("expected identical record to report no change")
	}
}

func TestBodyKeepsKnownActions(t *testing.T) {
	var b Body
	err := json.Unmarshal([]byte(`{
		"template": "single-line-list",
		"badge": 3,
		"actions": [
			{"type": "approve-comment", "params": {"rest_path": "/sites/1/comments/2", "rest_body": {"status": "approved"}}},
			{"type": "like-comment", "params": {}},
			{"type": "replyto-comment", "params": {"blog_id": "1", "comment_id": 2}}
		]
	}`), &b)
	if err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}

	if len(b.Actions) != 2 {
		t.Fatalf("expected 2 known actions, got %d", len(b.Actions))
	}
	if b.Actions[0].Kind != ActionApproveComment {
		t.Fatalf("expected approve first, got %s", b.Actions[0].Kind)
	}
	if b.Actions[1].Params.BlogID != 1 || b.Actions[1].Params.CommentID != 2 {
		t.Fatalf("unexpected reply params: %+v", b.Actions[1].Params)
	}
	if len(b.Unsupported) != 1 || b.Unsupported[0] != "like-comment" {
		t.Fatalf("expected like-comment unsupported, got %v", b.Unsupported)
	}
	if b.Badge != "3" {
		t.Fatalf("expected badge 3, got %q", b.Badge)
	}
}

func TestNoteActionLookup(t *testing.T) {
	n := Note{ID: 1}
	if _, ok := n.Action(ActionApproveComment); ok {
		t.Fatal("expected no action without body")
	}
	if n.NeedsApproval() {
		t.Fatal("expected no approval need without body")
	}

	n.Body = &Body{Actions: []Action{{Kind: ActionApproveComment}}}
	if !n.NeedsApproval() {
		t.Fatal("expected approval need when approve is offered")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	n := Note{
		ID:           1,
		Subject:      &Subject{Text: "a"},
		QueriedTypes: map[string]bool{"like": true},
	}
	c := n.Clone()
	c.Subject.Text = "b"
	c.QueriedTypes["comment"] = true

	if n.Subject.Text != "a" {
		t.Fatal("clone shares subject")
	}
	if n.QueriedTypes["comment"] {
		t.Fatal("clone shares queried types")
	}
}
