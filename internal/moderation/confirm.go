package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/model"
)

// Result is how a confirmation task ended.
type Result int

const (
	// Confirmed means a reload observed the expected change.
	Confirmed Result = iota
	// Unconfirmed means the tick cap was reached without observing the
	// change. The optimistic state is kept: the mutation may well have
	// succeeded behind an upstream cache.
	Unconfirmed
	// Superseded means a newer action on the same note cancelled the task.
	Superseded
	// Failed means the note left the feed while confirming.
	Failed
)

func (r Result) String() string {
	switch r {
	case Confirmed:
		return "confirmed"
	case Unconfirmed:
		return "unconfirmed"
	case Superseded:
		return "superseded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of a confirmation task. Ticks counts the
// polling ticks after the immediate reload; a change seen by the
// immediate reload is confirmed with zero ticks.
type Outcome struct {
	Result Result
	Ticks  int
	Err    error
}

// Confirmation is a cancellable task that polls a note until the
// expected server-side change is observed or the tick cap is reached.
type Confirmation struct {
	kind    model.ActionKind
	done    chan struct{}
	cancel  context.CancelFunc
	outcome Outcome
}

// Kind returns the action being confirmed.
func (c *Confirmation) Kind() model.ActionKind {
	return c.kind
}

// Done is closed when the task has ended.
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Outcome returns the result. It is only meaningful after Done is closed.
func (c *Confirmation) Outcome() Outcome {
	<-c.done
	return c.outcome
}

// Wait blocks until the task ends or ctx is done.
func (c *Confirmation) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Cancel stops the polling timer. An in-flight reload is not aborted; its
// response still merges into the feed.
func (c *Confirmation) Cancel() {
	c.cancel()
}

// poller runs one confirmation.
type poller struct {
	id       model.NoteID
	notes    NoteSource
	reloader Reloader
	interval time.Duration
	maxTicks int
	log      logrus.FieldLogger
}

// run reloads immediately, then once per interval up to maxTicks times,
// stopping at the first note state for which observed returns true.
func (p poller) run(ctx context.Context, observed func(model.Note) bool) Outcome {
	// Reloads outlive cancellation: only the timer is cancelled.
	reqCtx := context.WithoutCancel(ctx)

	check := func() (bool, error) {
		if err := p.reloader.Reload(reqCtx, p.id); err != nil {
			return false, err
		}
		n, ok := p.notes.Get(p.id)
		if !ok {
			return false, errNoteGone
		}
		return observed(n), nil
	}

	ok, err := check()
	switch {
	case ctx.Err() != nil:
		return Outcome{Result: Superseded, Err: ctx.Err()}
	case errors.Is(err, errNoteGone):
		return Outcome{Result: Failed, Err: err}
	case err == nil && ok:
		return Outcome{Result: Confirmed}
	case err != nil:
		p.log.WithError(err).WithField("note_id", p.id).Debug("confirmation reload failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for tick := 1; tick <= p.maxTicks; tick++ {
		select {
		case <-ctx.Done():
			return Outcome{Result: Superseded, Ticks: tick - 1, Err: ctx.Err()}
		case <-ticker.C:
		}

		ok, err := check()
		switch {
		case ctx.Err() != nil:
			return Outcome{Result: Superseded, Ticks: tick, Err: ctx.Err()}
		case errors.Is(err, errNoteGone):
			return Outcome{Result: Failed, Ticks: tick, Err: err}
		case err != nil:
			p.log.WithError(err).WithFields(logrus.Fields{
				"note_id": p.id,
				"tick":    tick,
			}).Debug("confirmation reload failed")
		case ok:
			return Outcome{Result: Confirmed, Ticks: tick}
		}
	}

	return Outcome{Result: Unconfirmed, Ticks: p.maxTicks}
}
