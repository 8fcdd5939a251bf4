package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notefeed/internal/theme"
)

// Layout manages the terminal layout dimensions: header, filter tabs,
// content and status bar stacked vertically.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	TabsHeight      int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		TabsHeight:      1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the main content area.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.TabsHeight-l.StatusBarHeight, 0)
}

// RenderHeader renders the top bar with the title on the left and the
// refresh status on the right.
func (l Layout) RenderHeader(title string, syncStatus string) string {
	titleRendered := theme.HeaderStyle.Render(title)
	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(syncStatus)

	gap := max(l.Width-lipgloss.Width(titleRendered)-lipgloss.Width(statusRendered), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, titleRendered, filler, statusRendered)
}

// RenderTabs renders the filter names with the active one highlighted.
func (l Layout) RenderTabs(names []string, active int) string {
	tabs := make([]string, len(names))
	for i, name := range names {
		if i == active {
			tabs[i] = theme.ActiveTabStyle.Render(name)
		} else {
			tabs[i] = theme.TabStyle.Render(name)
		}
	}
	row := strings.Join(tabs, "")
	return lipgloss.NewStyle().MaxWidth(l.Width).Render(row)
}

// RenderStatusBar renders the bottom bar, padded to the full width.
func (l Layout) RenderStatusBar(hints string) string {
	return theme.StatusBarStyle.
		Width(l.Width).
		MaxWidth(l.Width).
		Render(hints)
}

// RenderWithFrame joins the header, tabs, content and status bar.
func (l Layout) RenderWithFrame(header, tabs, content, statusBar string) string {
	content = lipgloss.NewStyle().Height(l.ContentHeight()).MaxHeight(l.ContentHeight()).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, tabs, content, statusBar)
}
