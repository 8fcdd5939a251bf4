package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle wraps the detail view content area.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// DimmedStyle renders read notes and secondary text.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// UnreadStyle renders the subject of an unread note.
var UnreadStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// ErrorStyle renders failures in the status bar and detail pane.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// TabStyle and ActiveTabStyle render the filter tabs.
var (
	TabStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBlue).
			Underline(true).
			Padding(0, 1)
)

// NoticonStyle returns a color-coded style for a noticon glyph name.
func NoticonStyle(noticon string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch noticon {
	case "comment":
		return base.Foreground(ColorBlue)
	case "like":
		return base.Foreground(ColorOrange)
	case "follow":
		return base.Foreground(ColorGreen)
	case "reblog":
		return base.Foreground(ColorMagenta)
	case "trophy", "milestone":
		return base.Foreground(ColorYellow)
	case "alert":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// ApprovalStyle returns a color-coded style for a comment's approval status.
func ApprovalStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case "approved":
		return base.Foreground(ColorGreen)
	case "unapproved":
		return base.Foreground(ColorYellow)
	case "spam":
		return base.Foreground(ColorOrange)
	case "trash":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// NoticonGlyph maps a noticon name to a terminal-safe symbol.
func NoticonGlyph(noticon string) string {
	switch noticon {
	case "comment":
		return "✉"
	case "like":
		return "★"
	case "follow":
		return "+"
	case "reblog":
		return "↻"
	case "trophy", "milestone":
		return "♛"
	case "alert":
		return "!"
	case "atsign":
		return "@"
	case "external":
		return "↗"
	default:
		return "•"
	}
}
