package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/keys"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/moderation"
	"github.com/nhle/notefeed/internal/source"
	appsync "github.com/nhle/notefeed/internal/sync"
	"github.com/nhle/notefeed/internal/telemetry"
	"github.com/nhle/notefeed/internal/ui"
	"github.com/nhle/notefeed/internal/ui/command"
	"github.com/nhle/notefeed/internal/ui/detail"
	helpview "github.com/nhle/notefeed/internal/ui/help"
	"github.com/nhle/notefeed/internal/ui/notelist"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
)

// requestTimeout bounds the one-off requests started from the UI.
const requestTimeout = 15 * time.Second

// commands are the palette entries; filter names are accepted as well.
var commands = []string{"refresh", "seen", "bodies", "quit"}

// Deps are the collaborators of the root model.
type Deps struct {
	Pipeline *feed.Pipeline
	Poller   *appsync.Poller
	API      source.API
	Stats    telemetry.Counter
	Logger   logrus.FieldLogger

	ConfirmInterval time.Duration
	ConfirmAttempts int
}

// feedEventMsg carries a store notification into the update loop.
type feedEventMsg struct {
	event feed.Event
}

// pageLoadedMsg reports the end of a filter page load.
type pageLoadedMsg struct {
	filter string
	err    error
}

// requestDoneMsg reports the end of a background request.
type requestDoneMsg struct {
	op  string
	err error
}

// Model is the root Bubble Tea model that manages view routing, the feed
// subscription and the moderation workflow of the open note.
type Model struct {
	deps         Deps
	store        *feed.Store
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	noteList     notelist.Model
	detail       detail.Model
	helpView     helpview.Model
	commandView  command.Model
	workflow     *moderation.Workflow
	events       chan feed.Event
	unsubscribe  func()
	seenSent     bool
	ready        bool
	statusMsg    string
	authError    string
	log          logrus.FieldLogger
}

// New creates a new root application model.
func New(deps Deps) Model {
	if deps.Stats == nil {
		deps.Stats = telemetry.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	k := keys.DefaultKeyMap()
	s := deps.Pipeline.Store()

	// Store events are coalesced: one pending event is enough to trigger
	// a redraw from the current state.
	events := make(chan feed.Event, 1)
	unsubscribe := s.Subscribe(func(e feed.Event) {
		select {
		case events <- e:
		default:
		}
	})

	palette := append(append([]string{}, commands...), notelist.Filters...)

	return Model{
		deps:        deps,
		store:       s,
		currentView: ViewList,
		keys:        k,
		noteList:    notelist.New(s, k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, palette, 80, 24),
		commandView: command.New(palette, 80, 24),
		events:      events,
		unsubscribe: unsubscribe,
		log:         deps.Logger,
	}
}

// Init refreshes the list from any restored snapshot, starts the poller
// and listens for store events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.noteList.Refresh(),
		m.deps.Poller.Start(),
		m.waitForEvent(),
	)
}

// waitForEvent returns a command that blocks until the store changes.
func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return feedEventMsg{event: e}
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.noteList.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		return m, nil

	case feedEventMsg:
		cmd := m.onFeedChanged()
		return m, tea.Batch(cmd, m.waitForEvent())

	case appsync.SyncResultMsg:
		return m, tea.Batch(m.onSyncResult(msg), m.deps.Poller.WaitForNextResult())

	case pageLoadedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("loading %s failed: %v", msg.filter, msg.err)
		}
		return m, nil

	case requestDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, feed.ErrNothingToLoad) {
			m.log.WithError(msg.err).WithField("op", msg.op).Warn("request failed")
			m.statusMsg = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		}
		return m, nil

	case notelist.FilterChangedMsg:
		return m, m.loadFilter(msg.Filter)

	case notelist.SelectedNoteMsg:
		return m, m.openNote(msg.NoteID)

	case detail.BackMsg:
		m.closeNote()
		m.currentView = ViewList
		return m, m.noteList.Refresh()

	case moderation.ReplyOpenedMsg:
		if msg.NoteID != m.detail.NoteID() {
			return m, nil
		}
		cmd := m.detail.OpenReply(msg.Draft)
		m.syncDetailState()
		return m, cmd

	case detail.SendReplyMsg:
		if m.workflow == nil || m.workflow.NoteID() != msg.NoteID {
			return m, nil
		}
		m.detail.SetStatus("sending reply...", false)
		return m, m.workflow.SubmitReplyCmd(msg.Text)

	case detail.CloseReplyMsg:
		if m.workflow != nil && m.workflow.NoteID() == msg.NoteID {
			m.workflow.CloseReply(msg.Draft)
		}
		m.syncDetailState()
		return m, nil

	case moderation.ActionStartedMsg:
		return m, m.onActionStarted(msg)

	case moderation.ConfirmationMsg:
		if msg.NoteID == m.detail.NoteID() {
			m.detail.SetStatus(describeOutcome(msg.Kind, msg.Outcome), msg.Outcome.Result == moderation.Failed)
			m.syncDetailState()
		}
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work outside the focused view.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.quit(), true
	}

	// The composer and the palette own every other key.
	if m.currentView == ViewCommand || (m.currentView == ViewDetail && m.detail.ReplyOpen()) {
		return nil, false
	}

	switch {
	case msg.String() == "q" && m.currentView == ViewList:
		return m.quit(), true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case msg.String() == ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Refresh):
		m.deps.Poller.Refresh()
		m.statusMsg = "refreshing..."
		return nil, true
	}

	if m.currentView == ViewHelp && key.Matches(msg, m.keys.Back) {
		m.currentView = m.previousView
		return nil, true
	}

	if m.currentView == ViewDetail && m.workflow != nil {
		if cmd, ok := m.workflow.HandleKey(msg); ok {
			m.syncDetailState()
			return cmd, true
		}
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.noteList, cmd = m.noteList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// onFeedChanged redraws the list and the open note from the store.
func (m *Model) onFeedChanged() tea.Cmd {
	cmd := m.noteList.Refresh()
	if id := m.detail.NoteID(); id != 0 {
		if n, ok := m.store.Get(id); ok {
			m.detail.SetNote(n)
		} else if m.currentView == ViewDetail {
			m.closeNote()
			m.currentView = ViewList
			m.statusMsg = "note removed"
		}
	}
	m.syncDetailState()
	return cmd
}

func (m *Model) onSyncResult(msg appsync.SyncResultMsg) tea.Cmd {
	switch {
	case msg.AuthError != nil:
		m.authError = msg.AuthError.Message
		return nil
	case msg.Error != nil:
		m.statusMsg = fmt.Sprintf("refresh failed: %v", msg.Error)
		return nil
	}

	m.authError = ""
	m.statusMsg = ""
	cmd := m.noteList.Refresh()

	// The list is on screen: everything up to the newest note has been seen.
	if !m.seenSent {
		m.seenSent = true
		return tea.Batch(cmd, m.markSeen())
	}
	return cmd
}

// openNote switches to the detail view of id with a fresh workflow.
func (m *Model) openNote(id model.NoteID) tea.Cmd {
	n, ok := m.store.Get(id)
	if !ok {
		return nil
	}

	m.closeNote()
	m.workflow = moderation.New(id, moderation.Deps{
		Notes:    m.store,
		Reloader: m.deps.Pipeline,
		API:      m.deps.API,
		Stats:    m.deps.Stats,
		Keys:     m.keys,
		Logger:   m.log,
		Interval: m.deps.ConfirmInterval,
		MaxTicks: m.deps.ConfirmAttempts,
	})
	m.detail.CloseReply()
	m.detail.SetNote(n)
	m.syncDetailState()
	m.previousView = m.currentView
	m.currentView = ViewDetail

	cmds := []tea.Cmd{m.markRead(id)}
	if !n.HasBody() {
		cmds = append(cmds, m.loadBody(id))
	}
	return tea.Batch(cmds...)
}

// closeNote disposes the workflow of the open note.
func (m *Model) closeNote() {
	if m.workflow != nil {
		m.workflow.Dispose()
		m.workflow = nil
	}
}

func (m *Model) syncDetailState() {
	if m.workflow == nil {
		m.detail.SetState("")
		return
	}
	m.detail.SetState(m.workflow.State().String())
}

func (m *Model) onActionStarted(msg moderation.ActionStartedMsg) tea.Cmd {
	if msg.NoteID != m.detail.NoteID() {
		return moderation.WaitCmd(msg.NoteID, msg.Confirmation)
	}

	if msg.Err != nil {
		m.detail.SetStatus(fmt.Sprintf("%s failed: %v", msg.Kind, msg.Err), true)
		m.syncDetailState()
		return nil
	}

	if msg.Kind == model.ActionReplyToComment {
		m.detail.CloseReply()
		m.detail.SetStatus("reply sent, confirming...", false)
	} else {
		m.detail.SetStatus(fmt.Sprintf("%s sent, confirming...", msg.Kind), false)
	}
	m.syncDetailState()
	return moderation.WaitCmd(msg.NoteID, msg.Confirmation)
}

// describeOutcome renders a confirmation result for the status line.
func describeOutcome(kind model.ActionKind, o moderation.Outcome) string {
	switch o.Result {
	case moderation.Confirmed:
		return fmt.Sprintf("%s confirmed", kind)
	case moderation.Unconfirmed:
		return fmt.Sprintf("%s sent; not yet visible after %d checks", kind, o.Ticks)
	case moderation.Superseded:
		return ""
	default:
		return fmt.Sprintf("%s: note is no longer available", kind)
	}
}

// loadFilter fetches the first page of a filter view.
func (m Model) loadFilter(filter string) tea.Cmd {
	p := m.deps.Pipeline
	return func() tea.Msg {
		_, err := p.LoadPage(context.Background(), feed.PageParams{Type: filter})
		return pageLoadedMsg{filter: filter, err: err}
	}
}

func (m Model) loadBody(id model.NoteID) tea.Cmd {
	p := m.deps.Pipeline
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := p.LoadBodyIDs(ctx, []model.NoteID{id})
		return requestDoneMsg{op: "loading note", err: err}
	}
}

func (m Model) loadAllBodies() tea.Cmd {
	p := m.deps.Pipeline
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := p.LoadBodies(ctx, nil)
		return requestDoneMsg{op: "loading bodies", err: err}
	}
}

func (m Model) markRead(id model.NoteID) tea.Cmd {
	p := m.deps.Pipeline
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return requestDoneMsg{op: "marking read", err: p.MarkRead(ctx, id)}
	}
}

func (m Model) markSeen() tea.Cmd {
	p := m.deps.Pipeline
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return requestDoneMsg{op: "marking seen", err: p.MarkSeen(ctx)}
	}
}

func (m *Model) quit() tea.Cmd {
	m.closeNote()
	m.deps.Poller.Stop()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return tea.Quit
}

// executeCommand runs a command resolved by the palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "refresh":
		m.deps.Poller.Refresh()
		return nil
	case "seen":
		return m.markSeen()
	case "bodies":
		return m.loadAllBodies()
	case "quit":
		return m.quit()
	}

	for i, f := range notelist.Filters {
		if f == cmd {
			var c tea.Cmd
			m.noteList, c = m.noteList.SelectFilter(i)
			m.currentView = ViewList
			return c
		}
	}
	m.statusMsg = fmt.Sprintf("unknown command %q", cmd)
	return nil
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Notifications"
	if n := m.store.NumberNew(); n > 0 {
		title = fmt.Sprintf("Notifications [%d new]", n)
	}
	header := m.layout.RenderHeader(title, m.syncStatus())
	tabs := m.layout.RenderTabs(notelist.Filters, m.noteList.FilterIndex())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, tabs, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.noteList.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the refresh state.
func (m Model) syncStatus() string {
	if m.store.Loading() {
		return "syncing"
	}
	st := m.deps.Poller.Status()
	switch st.State {
	case appsync.SyncRunning:
		return "syncing"
	case appsync.SyncError:
		return "⚠ unreachable"
	}
	if unread := m.store.UnreadCount(); unread > 0 {
		return fmt.Sprintf("%d unread", unread)
	}
	return "idle"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.authError != "" && m.currentView == ViewList {
		return m.authError
	}
	if m.statusMsg != "" && m.currentView == ViewList {
		return m.statusMsg
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewDetail:
		if m.detail.ReplyOpen() {
			return "ctrl+s send | esc close"
		}
		hints := "esc back | j/k scroll"
		if n, ok := m.store.Get(m.detail.NoteID()); ok && m.workflow != nil && m.workflow.State() == moderation.StateIdle {
			if offered := m.keys.OfferedHints(n); offered != "" {
				hints += " | " + offered
			}
		}
		return hints
	default:
		return "q quit | ? help | enter open | tab filter | R refresh | : command"
	}
}
