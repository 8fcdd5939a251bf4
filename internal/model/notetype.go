package model

// Note types referenced directly by the client.
const (
	TypeComment = "comment"
	TypeFollow  = "follow"
	TypeLike    = "like"
	TypeReblog  = "reblog"
)

// Structural filter names. Every other filter name is a category.
const (
	FilterUnread = "unread"
	FilterLatest = "latest"
)

// noteCategories maps a filter category to the note types it covers.
var noteCategories = map[string][]string{
	"comment": {TypeComment},
	"follow":  {TypeFollow},
	"like":    {TypeLike, "like_trap"},
	"reblog":  {TypeReblog},
	"trophy": {
		"best_liked_day_feat",
		"like_milestone_achievement",
		"achieve_automattician_note",
		"achieve_user_anniversary",
		"best_followed_day_feat",
		"followed_milestone_achievement",
	},
	"alert": {"expired_domain_alert"},
}

// Categories lists the category filter names in display order.
var Categories = []string{"comment", "follow", "like", "reblog", "trophy", "alert"}

// CategoryTypes returns the note types covered by a category.
func CategoryTypes(category string) ([]string, bool) {
	types, ok := noteCategories[category]
	return types, ok
}

// InCategory reports whether noteType belongs to category. Unknown
// categories contain nothing.
func InCategory(category, noteType string) bool {
	for _, t := range noteCategories[category] {
		if t == noteType {
			return true
		}
	}
	return false
}

// noticons maps note types to the icon glyph shown next to them.
var noticons = map[string]string{
	"like":                            "like",
	"follow":                          "follow",
	"comment_like":                    "like",
	"comment":                         "comment",
	"comment_pingback":                "external",
	"reblog":                          "reblog",
	"like_milestone_achievement":      "trophy",
	"achieve_followed_milestone_note": "trophy",
	"achieve_user_anniversary":        "trophy",
	"best_liked_day_feat":             "milestone",
	"best_followed_day_feat":          "milestone",
	"automattician_achievement":       "trophy",
	"expired_domain_alert":            "alert",
	"automattcher":                    "atsign",
}

// Noticon returns the glyph name for a note type, or "" when unknown.
func Noticon(noteType string) string {
	return noticons[noteType]
}
