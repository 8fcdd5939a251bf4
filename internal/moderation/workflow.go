package moderation

import (
	"context"
	"strings"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/keys"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
	"github.com/nhle/notefeed/internal/telemetry"
)

// State is the moderation state of one note.
type State int

const (
	StateIdle State = iota
	StateReplyOpen
	StateActionPending
	StateActionConfirming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReplyOpen:
		return "reply-open"
	case StateActionPending:
		return "action-pending"
	case StateActionConfirming:
		return "action-confirming"
	default:
		return "unknown"
	}
}

// phase is the action part of the state; the reply box is tracked apart
// so a failed action can fall back to it.
type phase int

const (
	phaseNone phase = iota
	phasePending
	phaseConfirming
)

const (
	defaultInterval = 3 * time.Second
	defaultMaxTicks = 10
)

// NoteSource reads notes from the feed. *feed.Store implements it.
type NoteSource interface {
	Get(id model.NoteID) (model.Note, bool)
}

// Reloader refetches a single note into the feed. *feed.Pipeline
// implements it.
type Reloader interface {
	Reload(ctx context.Context, id model.NoteID) error
}

// Deps are the collaborators of a Workflow.
type Deps struct {
	Notes    NoteSource
	Reloader Reloader
	API      source.API
	Stats    telemetry.Counter
	Keys     *keys.KeyMap
	Logger   logrus.FieldLogger

	// Interval and MaxTicks shape the confirmation poll; zero values
	// select 3s and 10 ticks.
	Interval time.Duration
	MaxTicks int
}

// Workflow is the optimistic action and confirmation state machine of a
// single note. It owns the note's keyboard subscription until disposed.
type Workflow struct {
	id   model.NoteID
	deps Deps
	log  logrus.FieldLogger

	mu        gosync.Mutex
	phase     phase
	replyOpen bool
	draft     string
	gen       int
	active    *Confirmation
	disposed  bool
}

// New creates the workflow of note id.
func New(id model.NoteID, deps Deps) *Workflow {
	if deps.Stats == nil {
		deps.Stats = telemetry.Nop{}
	}
	if deps.Keys == nil {
		deps.Keys = keys.DefaultKeyMap()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.MaxTicks <= 0 {
		deps.MaxTicks = defaultMaxTicks
	}
	return &Workflow{
		id:   id,
		deps: deps,
		log:  deps.Logger.WithField("note_id", id),
	}
}

// NoteID returns the note this workflow moderates.
func (w *Workflow) NoteID() model.NoteID {
	return w.id
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *Workflow) stateLocked() State {
	switch {
	case w.phase == phasePending:
		return StateActionPending
	case w.phase == phaseConfirming:
		return StateActionConfirming
	case w.replyOpen:
		return StateReplyOpen
	default:
		return StateIdle
	}
}

// Draft returns the unsent reply text.
func (w *Workflow) Draft() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Active returns the running confirmation task, if any.
func (w *Workflow) Active() *Confirmation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// OpenReply opens the reply composer. The previous draft is kept.
func (w *Workflow) OpenReply() error {
	note, ok := w.deps.Notes.Get(w.id)
	if !ok {
		return ErrUnknownNote
	}
	if _, ok := note.Action(model.ActionReplyToComment); !ok {
		return ErrActionUnavailable
	}

	w.mu.Lock()
	w.replyOpen = true
	w.mu.Unlock()
	return nil
}

// CloseReply closes the composer, keeping draft for the next open. An
// in-flight reply request is not affected.
func (w *Workflow) CloseReply(draft string) {
	w.mu.Lock()
	w.replyOpen = false
	w.draft = draft
	w.mu.Unlock()
}

// actionHandler performs one kind of action.
type actionHandler func(w *Workflow, ctx context.Context, note model.Note, action model.Action) (*Confirmation, error)

// handlers covers every model.ActionKind.
var handlers = map[model.ActionKind]actionHandler{
	model.ActionApproveComment:   (*Workflow).moderate,
	model.ActionUnapproveComment: (*Workflow).moderate,
	model.ActionSpamComment:      (*Workflow).moderate,
	model.ActionUnspamComment:    (*Workflow).moderate,
	model.ActionTrashComment:     (*Workflow).moderate,
	model.ActionUntrashComment:   (*Workflow).moderate,
	model.ActionReplyToComment:   (*Workflow).openReplyAction,
}

// Invoke performs the named action. For mutations it returns the
// confirmation task started once the service accepted the request; for
// the reply action it opens the composer and returns nil. A rejected
// mutation returns an *ActionError and restores the previous state.
func (w *Workflow) Invoke(ctx context.Context, kind model.ActionKind) (*Confirmation, error) {
	handler, ok := handlers[kind]
	if !ok {
		return nil, ErrActionUnavailable
	}

	note, ok := w.deps.Notes.Get(w.id)
	if !ok {
		return nil, ErrUnknownNote
	}
	action, ok := note.Action(kind)
	if !ok {
		return nil, ErrActionUnavailable
	}
	return handler(w, ctx, note, action)
}

func (w *Workflow) openReplyAction(_ context.Context, _ model.Note, _ model.Action) (*Confirmation, error) {
	return nil, w.OpenReply()
}

// moderate posts an approve/spam/trash style mutation and confirms it by
// watching approval_status move away from its pre-action value.
func (w *Workflow) moderate(ctx context.Context, note model.Note, action model.Action) (*Confirmation, error) {
	gen := w.begin()
	note, err := w.withCommentFields(ctx, gen, note, action.Kind)
	if err != nil {
		return nil, err
	}
	before := note.ApprovalStatus

	w.deps.Stats.Bump("notes-click-action", string(action.Kind))

	err = w.deps.API.Perform(ctx, action.Params.RestPath, action.Params.RestBody)
	if err != nil {
		w.abort(gen)
		w.log.WithError(err).WithField("action", action.Kind).Error("comment moderation error")
		w.reloadAfterFailure()
		return nil, &ActionError{Kind: action.Kind, NoteID: w.id, Err: err}
	}

	w.mu.Lock()
	w.replyOpen = false
	w.mu.Unlock()

	return w.confirm(gen, action.Kind, func(n model.Note) bool {
		return n.ApprovalStatus != before
	}), nil
}

// SubmitReply posts text as a reply to the comment. A comment awaiting
// approval is approved first, as replying implies approval. The reply is
// confirmed by watching has_replied.
func (w *Workflow) SubmitReply(ctx context.Context, text string) (*Confirmation, error) {
	note, ok := w.deps.Notes.Get(w.id)
	if !ok {
		return nil, ErrUnknownNote
	}
	action, ok := note.Action(model.ActionReplyToComment)
	if !ok {
		return nil, ErrActionUnavailable
	}

	w.mu.Lock()
	w.draft = text
	w.mu.Unlock()

	blogID := int64(action.Params.BlogID)
	commentID := int64(action.Params.CommentID)
	if blogID == 0 || commentID == 0 || strings.TrimSpace(text) == "" {
		return nil, ErrInvalidReply
	}

	gen := w.begin()
	note, err := w.withCommentFields(ctx, gen, note, model.ActionReplyToComment)
	if err != nil {
		return nil, err
	}
	w.deps.Stats.Bump("notes-click-action", string(model.ActionReplyToComment))

	if approve, ok := note.Action(model.ActionApproveComment); ok {
		w.deps.Stats.Bump("notes-click-action", string(model.ActionApproveComment))
		err := w.deps.API.Perform(ctx, approve.Params.RestPath, approve.Params.RestBody)
		if err != nil {
			w.abort(gen)
			w.log.WithError(err).WithField("action", model.ActionApproveComment).Error("comment moderation error")
			return nil, &ActionError{Kind: model.ActionApproveComment, NoteID: w.id, Err: err}
		}
	}

	if err := w.deps.API.Reply(ctx, blogID, commentID, text); err != nil {
		w.abort(gen)
		w.log.WithError(err).Error("comment reply error")
		return nil, &ActionError{Kind: model.ActionReplyToComment, NoteID: w.id, Err: err}
	}

	w.mu.Lock()
	w.replyOpen = false
	w.draft = ""
	w.mu.Unlock()

	return w.confirm(gen, model.ActionReplyToComment, func(n model.Note) bool {
		return n.HasReplied
	}), nil
}

// withCommentFields returns note with approval_status and has_replied
// known. Listing fetches leave them out, so a note that has never been
// reloaded is fetched again before its pre-action state is recorded.
func (w *Workflow) withCommentFields(ctx context.Context, gen int, note model.Note, kind model.ActionKind) (model.Note, error) {
	if note.ApprovalStatus != "" || !note.IsComment() {
		return note, nil
	}
	if err := w.deps.Reloader.Reload(ctx, w.id); err != nil {
		w.abort(gen)
		w.log.WithError(err).WithField("action", kind).Error("loading comment state")
		return model.Note{}, &ActionError{Kind: kind, NoteID: w.id, Err: err}
	}
	fresh, ok := w.deps.Notes.Get(w.id)
	if !ok {
		w.abort(gen)
		return model.Note{}, ErrUnknownNote
	}
	return fresh, nil
}

// begin cancels any running confirmation and enters the pending phase.
func (w *Workflow) begin() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active != nil {
		w.active.Cancel()
		w.active = nil
	}
	w.gen++
	w.phase = phasePending
	return w.gen
}

// abort leaves the pending phase after a failed mutation, unless a newer
// action has taken over.
func (w *Workflow) abort(gen int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen == gen {
		w.phase = phaseNone
	}
}

// reloadAfterFailure refreshes the note in the background so the feed
// reflects whatever the service actually did.
func (w *Workflow) reloadAfterFailure() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := w.deps.Reloader.Reload(ctx, w.id); err != nil {
			w.log.WithError(err).Debug("reload after failed action")
		}
	}()
}

// confirm starts the confirmation task for generation gen.
func (w *Workflow) confirm(gen int, kind model.ActionKind, observed func(model.Note) bool) *Confirmation {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Confirmation{
		kind:   kind,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	w.mu.Lock()
	if w.gen != gen {
		// A newer action started while this one was in flight.
		w.mu.Unlock()
		cancel()
		c.outcome = Outcome{Result: Superseded, Err: context.Canceled}
		close(c.done)
		return c
	}
	w.phase = phaseConfirming
	w.active = c
	w.mu.Unlock()

	p := poller{
		id:       w.id,
		notes:    w.deps.Notes,
		reloader: w.deps.Reloader,
		interval: w.deps.Interval,
		maxTicks: w.deps.MaxTicks,
		log:      w.log,
	}

	go func() {
		defer cancel()
		outcome := p.run(ctx, observed)
		c.outcome = outcome

		entry := w.log.WithFields(logrus.Fields{
			"action":  kind,
			"outcome": outcome.Result,
			"ticks":   outcome.Ticks,
		})
		if outcome.Result == Unconfirmed {
			entry.Warn("action not confirmed before the poll cap; keeping optimistic state")
		} else {
			entry.Debug("confirmation finished")
		}

		w.mu.Lock()
		if w.active == c {
			w.active = nil
			w.phase = phaseNone
		}
		w.mu.Unlock()
		close(c.done)
	}()

	return c
}

// Dispose tears down the workflow's keyboard subscription. A running
// confirmation is left to finish on its own.
func (w *Workflow) Dispose() {
	w.mu.Lock()
	w.disposed = true
	w.mu.Unlock()
}

// Disposed reports whether Dispose has been called.
func (w *Workflow) Disposed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disposed
}
