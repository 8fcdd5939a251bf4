package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// RawNote is a notification record as returned by the remote service.
// Every attribute except the id is optional: a field left nil was not part
// of the requested field set and must not overwrite local state.
type RawNote struct {
	ID             NoteID          `json:"id"`
	Type           *string         `json:"type,omitempty"`
	Unread         *Unread         `json:"unread,omitempty"`
	Timestamp      *Timestamp      `json:"timestamp,omitempty"`
	Noticon        *string         `json:"noticon,omitempty"`
	Date           *string         `json:"date,omitempty"`
	Subject        json.RawMessage `json:"subject,omitempty"`
	Body           *Body           `json:"body,omitempty"`
	ApprovalStatus *string         `json:"approval_status,omitempty"`
	HasReplied     *bool           `json:"has_replied,omitempty"`
	Meta           json.RawMessage `json:"meta,omitempty"`
}

// Valid reports whether the record carries a subject object. Records
// without one must never enter the store.
func (r RawNote) Valid() bool {
	s := bytes.TrimSpace(r.Subject)
	return len(s) > 0 && s[0] == '{'
}

// ParseSubject decodes the subject object.
func (r RawNote) ParseSubject() (*Subject, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("note %d has no subject object", r.ID)
	}
	var s Subject
	if err := json.Unmarshal(r.Subject, &s); err != nil {
		return nil, fmt.Errorf("decoding subject of note %d: %w", r.ID, err)
	}
	return &s, nil
}

// NewNote builds a note from a valid raw record.
func NewNote(r RawNote) (Note, error) {
	n := Note{ID: r.ID}
	if _, err := n.Apply(r); err != nil {
		return Note{}, err
	}
	return n, nil
}

// Apply overwrites the attributes present in r and reports whether any
// visible attribute changed. QueriedTypes is never touched.
func (n *Note) Apply(r RawNote) (bool, error) {
	subject, err := r.ParseSubject()
	if err != nil {
		return false, err
	}

	changed := false
	if n.Subject == nil || *n.Subject != *subject {
		n.Subject = subject
		changed = true
	}
	if r.Type != nil && *r.Type != n.Type {
		n.Type = *r.Type
		changed = true
	}
	if r.Unread != nil && *r.Unread != n.Unread {
		n.Unread = *r.Unread
		changed = true
	}
	if r.Timestamp != nil && *r.Timestamp != n.Timestamp {
		n.Timestamp = *r.Timestamp
		changed = true
	}
	if r.Noticon != nil && *r.Noticon != n.Noticon {
		n.Noticon = *r.Noticon
		changed = true
	}
	if r.Date != nil && *r.Date != n.Date {
		n.Date = *r.Date
		changed = true
	}
	if r.Body != nil && (n.Body == nil || !reflect.DeepEqual(*n.Body, *r.Body)) {
		body := *r.Body
		n.Body = &body
		changed = true
	}
	if r.ApprovalStatus != nil && *r.ApprovalStatus != n.ApprovalStatus {
		n.ApprovalStatus = *r.ApprovalStatus
		changed = true
	}
	if r.HasReplied != nil && *r.HasReplied != n.HasReplied {
		n.HasReplied = *r.HasReplied
		changed = true
	}
	if len(r.Meta) > 0 && !bytes.Equal(r.Meta, n.Meta) {
		n.Meta = append(json.RawMessage(nil), r.Meta...)
		changed = true
	}
	return changed, nil
}
