package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NoteID is the identifier the remote service assigns to a notification.
type NoteID int64

// Timestamp is the server-assigned ordering key of a notification, in
// seconds. It is monotonic per note but not unique across notes.
type Timestamp int64

// Unread is the unseen-increment count of a notification. The remote
// service reports it either as a boolean or as a count; zero means read.
type Unread int64

// FlexInt is an integer the remote service may encode as a JSON number,
// a numeric string or a boolean.
type FlexInt int64

// UnmarshalJSON accepts a number or a numeric string.
func (id *NoteID) UnmarshalJSON(data []byte) error {
	v, err := parseFlexInt(data)
	if err != nil {
		return fmt.Errorf("decoding note id: %w", err)
	}
	*id = NoteID(v)
	return nil
}

// String returns the decimal form used in query parameters.
func (id NoteID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON accepts a number or a numeric string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	v, err := parseFlexInt(data)
	if err != nil {
		return fmt.Errorf("decoding timestamp: %w", err)
	}
	*ts = Timestamp(v)
	return nil
}

// UnmarshalJSON accepts true/false, a count, or a numeric string.
func (u *Unread) UnmarshalJSON(data []byte) error {
	v, err := parseFlexInt(data)
	if err != nil {
		return fmt.Errorf("decoding unread: %w", err)
	}
	*u = Unread(v)
	return nil
}

// UnmarshalJSON accepts a number, a numeric string or a boolean.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	v, err := parseFlexInt(data)
	if err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}

// parseFlexInt decodes the loosely typed integers found in notification
// payloads. null and the empty string decode to zero.
func parseFlexInt(data []byte) (int64, error) {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "", "null", "false", `""`:
		return 0, nil
	case "true":
		return 1, nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			return 0, nil
		}
	}

	if v, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		return v, nil
	}

	// Some payloads carry floats ("1357000000.0").
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", string(data))
	}
	return int64(f), nil
}

// Subject is the small display descriptor every valid notification has.
type Subject struct {
	Icon string `json:"icon,omitempty"`
	HTML string `json:"html,omitempty"`
	Text string `json:"text,omitempty"`
}

// BodyItem is one entry of a list-style notification body.
type BodyItem struct {
	Icon       string          `json:"icon,omitempty"`
	IconWidth  FlexInt         `json:"icon_width,omitempty"`
	IconHeight FlexInt         `json:"icon_height,omitempty"`
	Header     string          `json:"header,omitempty"`
	HTML       string          `json:"html,omitempty"`
	Action     json.RawMessage `json:"action,omitempty"`
}

// Body is the lazily loaded detail payload of a notification.
type Body struct {
	Template string     `json:"template,omitempty"`
	Header   string     `json:"header,omitempty"`
	Items    []BodyItem `json:"items,omitempty"`
	Actions  []Action   `json:"actions,omitempty"`
	Footer   string     `json:"footer,omitempty"`
	HTML     string     `json:"html,omitempty"`
	Badge    string     `json:"badge,omitempty"`

	// Unsupported lists action types present in the payload that this
	// client does not know how to perform.
	Unsupported []string `json:"unsupported_actions,omitempty"`
}

// UnmarshalJSON decodes a body, keeping only actions of a known kind.
func (b *Body) UnmarshalJSON(data []byte) error {
	type wireAction struct {
		Type   string       `json:"type"`
		Params ActionParams `json:"params"`
	}
	type wireBody struct {
		Template    string          `json:"template"`
		Header      string          `json:"header"`
		Items       []BodyItem      `json:"items"`
		Actions     []wireAction    `json:"actions"`
		Footer      string          `json:"footer"`
		HTML        string          `json:"html"`
		Badge       json.RawMessage `json:"badge"`
		Unsupported []string        `json:"unsupported_actions"`
	}

	var w wireBody
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding note body: %w", err)
	}

	*b = Body{
		Template:    w.Template,
		Header:      w.Header,
		Items:       w.Items,
		Footer:      w.Footer,
		HTML:        w.HTML,
		Badge:       rawText(w.Badge),
		Unsupported: w.Unsupported,
	}
	for _, a := range w.Actions {
		kind, ok := ParseActionKind(a.Type)
		if !ok {
			b.Unsupported = append(b.Unsupported, a.Type)
			continue
		}
		b.Actions = append(b.Actions, Action{Kind: kind, Params: a.Params})
	}
	return nil
}

// rawText returns a JSON string value as-is and any other JSON value in
// its encoded form.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Note is one notification record held by the feed store.
type Note struct {
	ID        NoteID    `json:"id"`
	Type      string    `json:"type"`
	Unread    Unread    `json:"unread"`
	Timestamp Timestamp `json:"timestamp"`
	Noticon   string    `json:"noticon,omitempty"`
	Date      string    `json:"date,omitempty"`
	Subject   *Subject  `json:"subject"`

	// Body is nil until the full payload has been fetched.
	Body *Body `json:"body,omitempty"`

	ApprovalStatus string          `json:"approval_status,omitempty"`
	HasReplied     bool            `json:"has_replied,omitempty"`
	Meta           json.RawMessage `json:"meta,omitempty"`

	// QueriedTypes records which named filter views most recently matched
	// this note. It is tracked locally and never sent to the service.
	QueriedTypes map[string]bool `json:"queried_types,omitempty"`
}

// IsUnread reports whether the note has unseen increments.
func (n Note) IsUnread() bool {
	return n.Unread != 0
}

// HasBody reports whether the full body has been loaded.
func (n Note) HasBody() bool {
	return n.Body != nil
}

// IsComment reports whether the note is about a comment.
func (n Note) IsComment() bool {
	return n.Type == TypeComment
}

// Action returns the body action of the given kind, if the note offers it.
func (n Note) Action(kind ActionKind) (Action, bool) {
	if n.Body == nil {
		return Action{}, false
	}
	for _, a := range n.Body.Actions {
		if a.Kind == kind {
			return a, true
		}
	}
	return Action{}, false
}

// NeedsApproval reports whether the comment is still awaiting approval,
// which the service signals by offering the approve action.
func (n Note) NeedsApproval() bool {
	_, ok := n.Action(ActionApproveComment)
	return ok
}

// Clone returns a copy that shares no mutable state with n.
func (n Note) Clone() Note {
	c := n
	if n.QueriedTypes != nil {
		c.QueriedTypes = make(map[string]bool, len(n.QueriedTypes))
		for k, v := range n.QueriedTypes {
			c.QueriedTypes[k] = v
		}
	}
	if n.Subject != nil {
		s := *n.Subject
		c.Subject = &s
	}
	return c
}
