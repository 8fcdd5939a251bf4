package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
	"github.com/nhle/notefeed/internal/store"
)

// SyncState represents the current state of the feed refresh.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus holds the refresh state of the feed.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// Refresh origins recorded with each run.
const (
	TriggerPoll   = "poll"
	TriggerManual = "manual"
	TriggerCLI    = "cli"
)

// SyncResultMsg is a tea.Msg sent when a refresh completes.
type SyncResultMsg struct {
	Trigger   string
	Fetched   int
	Changed   bool
	NewCount  int
	Bodies    feed.BodiesOutcome
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is a tea.Msg sent when the service rejects the credentials.
type AuthErrorMsg struct {
	Message string
}

// fetchTimeout bounds one whole refresh, bodies included.
const fetchTimeout = 30 * time.Second

// Options configures a Poller.
type Options struct {
	Interval   time.Duration
	LoadBodies bool
	Logger     logrus.FieldLogger
}

// Poller refreshes the feed in the background and keeps the on-disk
// snapshot current.
type Poller struct {
	pipeline  *feed.Pipeline
	cache     store.Store
	opts      Options
	log       logrus.FieldLogger
	status    SyncStatus
	resultCh  chan SyncResultMsg
	triggerCh chan string
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a Poller. cache may be nil to run without persistence.
func New(pipeline *feed.Pipeline, cache store.Store, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 120 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Poller{
		pipeline:  pipeline,
		cache:     cache,
		opts:      opts,
		log:       opts.Logger.WithField("component", "poller"),
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan string, 16),
		stopCh:    make(chan struct{}),
	}
}

// Restore seeds the feed from the cached snapshot. A missing or empty
// cache is not an error.
func (p *Poller) Restore(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}

	notes, err := p.cache.LoadNotes(ctx)
	if err != nil {
		return fmt.Errorf("loading cached notes: %w", err)
	}
	st, err := p.cache.LoadFeedState(ctx)
	if err != nil {
		return fmt.Errorf("loading feed state: %w", err)
	}

	s := p.pipeline.Store()
	s.Restore(notes)
	if st.LastSeenKnown {
		s.ObserveLastSeen(st.LastSeen)
	}

	p.mu.Lock()
	p.status.LastSync = st.SyncedAt
	p.mu.Unlock()

	p.log.WithField("notes", len(notes)).Debug("restored feed snapshot")
	return nil
}

// Start returns a tea.Cmd that starts the polling goroutine and waits for
// the first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()

	return p.waitForResult()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Refresh queues an immediate refresh. It never blocks; a refresh that is
// already queued absorbs the request.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- TriggerManual:
	default:
	}
}

// Status returns the current refresh status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.sendResult(p.RunOnce(context.Background(), TriggerPoll))

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendResult(p.RunOnce(context.Background(), TriggerPoll))
		case trigger := <-p.triggerCh:
			p.sendResult(p.RunOnce(context.Background(), trigger))
		}
	}
}

// RunOnce loads the latest page, optionally fills in bodies, saves the
// snapshot and records the run.
func (p *Poller) RunOnce(ctx context.Context, trigger string) SyncResultMsg {
	p.setStatus(SyncRunning, nil)
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	s := p.pipeline.Store()
	msg := SyncResultMsg{Trigger: trigger}

	out, err := p.pipeline.LoadPage(ctx, feed.PageParams{Type: model.FilterLatest})
	if err != nil {
		msg.Error = err
		if source.IsAuthError(err) {
			msg.AuthError = &AuthErrorMsg{
				Message: "authentication expired. Run `notefeed login` to sign in again.",
			}
		}
		p.setStatus(SyncError, err)
		p.record(ctx, trigger, msg, started)
		return msg
	}
	msg.Fetched = out.Fetched
	msg.Changed = out.Changed

	if p.opts.LoadBodies {
		bodies, err := p.pipeline.LoadBodies(ctx, func(n model.Note) bool { return !n.HasBody() })
		switch {
		case errors.Is(err, feed.ErrNothingToLoad):
		case err != nil:
			p.log.WithError(err).Warn("loading bodies")
		}
		msg.Bodies = bodies
	}
	msg.NewCount = s.NumberNew()

	if err := p.save(ctx); err != nil {
		p.log.WithError(err).Warn("saving feed snapshot")
	}

	p.setStatus(SyncIdle, nil)
	p.record(ctx, trigger, msg, started)
	return msg
}

func (p *Poller) save(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}

	s := p.pipeline.Store()
	if _, err := p.cache.SaveNotes(ctx, s.Notes()); err != nil {
		return err
	}
	lastSeen, known := s.LastSeen()
	return p.cache.SaveFeedState(ctx, store.FeedState{
		LastSeen:      lastSeen,
		LastSeenKnown: known,
		SyncedAt:      time.Now(),
	})
}

func (p *Poller) record(ctx context.Context, trigger string, msg SyncResultMsg, started time.Time) {
	if p.cache == nil {
		return
	}

	run := store.SyncRun{
		Trigger:   trigger,
		Fetched:   msg.Fetched,
		Changed:   msg.Changed,
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	if msg.Error != nil {
		run.Error = msg.Error.Error()
	}
	if err := p.cache.RecordSync(context.WithoutCancel(ctx), run); err != nil {
		p.log.WithError(err).Debug("recording sync run")
	}
}

// setStatus updates the refresh status.
func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next sync result.
// This should be called after processing a SyncResultMsg to continue
// listening for future results.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
