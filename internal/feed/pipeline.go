package feed

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
	"github.com/nhle/notefeed/internal/telemetry"
)

// Field sets requested from the listing endpoint.
const (
	FieldsDefault  = "id,type,unread,noticon,subject,body,date,timestamp"
	FieldsSubjects = "id,type,unread,noticon,timestamp,subject"
	FieldsBodies   = "id,type,unread,noticon,timestamp,subject,body,meta"
	fieldsComment  = ",approval_status,has_replied"
)

const (
	defaultPageSize      = 9
	defaultBodyBatchSize = 3
	defaultFetchTimeout  = 7 * time.Second
)

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	PageSize      int
	BodyBatchSize int
	FetchTimeout  time.Duration
	Stats         telemetry.Counter
	Logger        logrus.FieldLogger
}

// Pipeline fetches notes from the service and feeds them into a Store.
// It does not serialize concurrent calls: responses merge in completion
// order, and the later response's values win.
type Pipeline struct {
	store *Store
	api   source.API
	opts  Options
	log   logrus.FieldLogger
}

// NewPipeline wires a store to the notification service.
func NewPipeline(store *Store, api source.API, opts Options) *Pipeline {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.BodyBatchSize <= 0 {
		opts.BodyBatchSize = defaultBodyBatchSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Stats == nil {
		opts.Stats = telemetry.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Pipeline{
		store: store,
		api:   api,
		opts:  opts,
		log:   opts.Logger,
	}
}

// Store returns the store the pipeline feeds.
func (p *Pipeline) Store() *Store {
	return p.store
}

// PageParams selects one page of the listing. Zero values are omitted.
type PageParams struct {
	Number int
	Before model.Timestamp
	Since  model.Timestamp

	// Type is a note type, a category, or one of the structural views
	// "unread" and "latest". Structural views are not sent to the
	// service; every non-empty Type tags the merged notes.
	Type    string
	Unread  *bool
	Fields  string
	Timeout time.Duration
}

// FetchOutcome summarizes a successful page load.
type FetchOutcome struct {
	Fetched int
	Changed bool
}

// LoadPage fetches one page and merges it. On failure the store is left
// untouched and a loading-failed event is emitted.
func (p *Pipeline) LoadPage(ctx context.Context, params PageParams) (FetchOutcome, error) {
	number := params.Number
	if number <= 0 {
		number = p.opts.PageSize
	}
	fields := params.Fields
	if fields == "" {
		fields = FieldsDefault
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = p.opts.FetchTimeout
	}

	q := source.NotesQuery{
		Fields: fields,
		Number: number,
		Before: params.Before,
		Since:  params.Since,
		Unread: params.Unread,
	}
	if params.Type != model.FilterUnread && params.Type != model.FilterLatest {
		q.Type = params.Type
	}

	p.store.setLoading(true)
	p.store.emit(EventLoadingStarted)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := p.api.GetNotes(ctx, q)
	if err != nil {
		p.store.setLoading(false)
		p.store.emit(EventLoadingFailed)
		p.log.WithError(err).WithField("type", params.Type).Warn("loading notes failed")
		return FetchOutcome{}, &TransportError{Op: "loading notes", Err: err}
	}

	changed := p.store.mergePage(page.Notes, params.Type, page.LastSeenTime)
	p.store.setLoading(false)
	p.store.emit(EventLoadingEnded)

	p.log.WithFields(logrus.Fields{
		"type":    params.Type,
		"fetched": len(page.Notes),
		"changed": changed,
	}).Debug("loaded notes")

	return FetchOutcome{Fetched: len(page.Notes), Changed: changed}, nil
}

// LoadSubjects loads a page of header-only notes.
func (p *Pipeline) LoadSubjects(ctx context.Context, params PageParams) (FetchOutcome, error) {
	params.Fields = FieldsSubjects
	return p.LoadPage(ctx, params)
}

// Reload refetches a single note and merges the result. Comment notes
// also fetch their moderation fields.
func (p *Pipeline) Reload(ctx context.Context, id model.NoteID) error {
	fields := FieldsDefault
	if n, ok := p.store.Get(id); !ok || n.IsComment() {
		fields += fieldsComment
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	page, err := p.api.GetNotes(ctx, source.NotesQuery{
		Fields: fields,
		IDs:    []model.NoteID{id},
	})
	if err != nil {
		return &TransportError{Op: "reloading note " + id.String(), Err: err}
	}
	p.store.Merge(page.Notes, "")
	return nil
}

// MarkSeen tells the service the newest held note has been seen, when it
// is newer than the high-water mark. On success the mark is reset to
// unknown so the next listing re-derives it rather than trusting a local
// value that may race with other clients.
func (p *Pipeline) MarkSeen(ctx context.Context) error {
	newest, ok := p.store.MostRecentTimestamp()
	if !ok {
		return nil
	}
	if last, known := p.store.LastSeen(); known && newest <= last {
		return nil
	}
	if newest <= 0 {
		return nil
	}

	if err := p.api.MarkSeen(ctx, newest); err != nil {
		return &TransportError{Op: "marking notes seen", Err: err}
	}
	p.store.ResetLastSeen()
	return nil
}

// MarkRead acknowledges the unread count of one note. The local count is
// refreshed by the next listing.
func (p *Pipeline) MarkRead(ctx context.Context, id model.NoteID) error {
	n, ok := p.store.Get(id)
	if !ok {
		return ErrUnknownNote
	}
	if !n.IsUnread() {
		return nil
	}

	p.opts.Stats.Bump("notes-read-type", n.Type)
	err := p.api.MarkRead(ctx, map[model.NoteID]model.Unread{id: n.Unread})
	if err != nil {
		return &TransportError{Op: "marking note " + id.String() + " read", Err: err}
	}
	return nil
}
