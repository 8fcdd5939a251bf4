package model

// ActionKind is one of the moderation operations a comment notification
// can offer. The set is closed: payload actions of any other type are
// never dispatched.
type ActionKind string

const (
	ActionApproveComment   ActionKind = "approve-comment"
	ActionUnapproveComment ActionKind = "unapprove-comment"
	ActionSpamComment      ActionKind = "spam-comment"
	ActionUnspamComment    ActionKind = "unspam-comment"
	ActionTrashComment     ActionKind = "trash-comment"
	ActionUntrashComment   ActionKind = "untrash-comment"
	ActionReplyToComment   ActionKind = "replyto-comment"
)

// ActionKinds lists every known kind in display order.
var ActionKinds = []ActionKind{
	ActionReplyToComment,
	ActionApproveComment,
	ActionUnapproveComment,
	ActionSpamComment,
	ActionUnspamComment,
	ActionTrashComment,
	ActionUntrashComment,
}

// ParseActionKind maps a payload action type to its kind.
func ParseActionKind(s string) (ActionKind, bool) {
	for _, k := range ActionKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Action is an operation offered in a notification body.
type Action struct {
	Kind   ActionKind   `json:"type"`
	Params ActionParams `json:"params"`
}

// ActionParams carries the server-call parameters and button labels of an
// action as sent by the service.
type ActionParams struct {
	// RestPath and RestBody describe the mutation request.
	RestPath string         `json:"rest_path,omitempty"`
	RestBody map[string]any `json:"rest_body,omitempty"`

	URL             string `json:"url,omitempty"`
	TitleText       string `json:"title_text,omitempty"`
	ButtonTitleText string `json:"button_title_text,omitempty"`
	ButtonText      string `json:"button_text,omitempty"`
	Text            string `json:"text,omitempty"`

	// Reply parameters.
	BlogID           FlexInt `json:"blog_id,omitempty"`
	CommentID        FlexInt `json:"comment_id,omitempty"`
	ReplyHeaderText  string  `json:"reply_header_text,omitempty"`
	SubmitButtonText string  `json:"submit_button_text,omitempty"`
}

// Label returns the button text for the action.
func (a Action) Label() string {
	if a.Params.ButtonText != "" {
		return a.Params.ButtonText
	}
	if a.Params.Text != "" {
		return a.Params.Text
	}
	return string(a.Kind)
}
