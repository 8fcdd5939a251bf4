package feed

import (
	"context"
	"errors"
	"sort"
	"strings"
	gosync "sync"
	"testing"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
	"github.com/nhle/notefeed/tests/testutil"
)

type recordingCounter struct {
	mu    gosync.Mutex
	bumps []string
}

func (c *recordingCounter) Bump(group, names string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps = append(c.bumps, group+":"+names)
}

func newTestPipeline(api source.API, opts Options) *Pipeline {
	opts.Logger = quietLogger()
	return NewPipeline(NewStore(0, opts.Logger), api, opts)
}

func TestLoadPageMergesAndTags(t *testing.T) {
	api := &testutil.FakeAPI{
		GetNotesFunc: func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
			page := testutil.Page(
				rawNote(t, 1, 100, `,"type":"comment"`),
				rawNote(t, 2, 200, `,"type":"like"`),
			)
			page.LastSeenTime = 150
			return page, nil
		},
	}
	p := newTestPipeline(api, Options{})

	var events []Event
	p.Store().Subscribe(func(e Event) { events = append(events, e) })

	out, err := p.LoadPage(context.Background(), PageParams{Type: model.FilterLatest})
	if err != nil {
		t.Fatalf("load page: %v", err)
	}
	if out.Fetched != 2 || !out.Changed {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	q := api.Queries()[0]
	if q.Type != "" {
		t.Fatalf("expected structural filter not to be sent, got %q", q.Type)
	}
	if q.Number != defaultPageSize || q.Fields != FieldsDefault {
		t.Fatalf("unexpected query defaults: %+v", q)
	}

	if got := len(p.Store().ByFilter(model.FilterLatest)); got != 2 {
		t.Fatalf("expected 2 latest notes, got %d", got)
	}
	if ts, ok := p.Store().LastSeen(); !ok || ts != 150 {
		t.Fatalf("expected last seen 150, got %d %v", ts, ok)
	}
	if got := p.Store().NumberNew(); got != 1 {
		t.Fatalf("expected 1 new note, got %d", got)
	}
	if !p.Store().HasLoaded() || p.Store().Loading() {
		t.Fatal("expected loaded and idle store")
	}

	want := []Event{EventLoadingStarted, EventStoreChanged, EventLoadingEnded}
	if len(events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, events)
		}
	}
}

func TestLoadPageSendsCategory(t *testing.T) {
	api := &testutil.FakeAPI{}
	p := newTestPipeline(api, Options{PageSize: 20})

	unread := true
	if _, err := p.LoadPage(context.Background(), PageParams{Type: "comment", Unread: &unread, Before: 500}); err != nil {
		t.Fatalf("load page: %v", err)
	}

	q := api.Queries()[0]
	if q.Type != "comment" || q.Number != 20 || q.Before != 500 || q.Unread == nil || !*q.Unread {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestLoadPageFailureLeavesStore(t *testing.T) {
	api := &testutil.FakeAPI{
		GetNotesFunc: func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
			return nil, errors.New("boom")
		},
	}
	p := newTestPipeline(api, Options{})
	p.Store().Merge([]model.RawNote{rawNote(t, 1, 100, "")}, "")

	var events []Event
	p.Store().Subscribe(func(e Event) { events = append(events, e) })

	_, err := p.LoadPage(context.Background(), PageParams{Type: model.FilterLatest})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if p.Store().Len() != 1 {
		t.Fatalf("expected store untouched, got %d notes", p.Store().Len())
	}
	if p.Store().Loading() {
		t.Fatal("expected loading flag cleared")
	}
	if len(events) != 2 || events[1] != EventLoadingFailed {
		t.Fatalf("expected loading-failed, got %v", events)
	}
}

func TestLoadSubjectsRequestsHeaders(t *testing.T) {
	api := &testutil.FakeAPI{}
	p := newTestPipeline(api, Options{})

	if _, err := p.LoadSubjects(context.Background(), PageParams{}); err != nil {
		t.Fatalf("load subjects: %v", err)
	}
	if q := api.Queries()[0]; q.Fields != FieldsSubjects {
		t.Fatalf("expected subject fields, got %q", q.Fields)
	}
}

func TestReloadAddsCommentFields(t *testing.T) {
	api := &testutil.FakeAPI{
		GetNotesFunc: func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
			return testutil.Page(rawNote(t, 5, 100, `,"type":"comment","approval_status":"approved"`)), nil
		},
	}
	p := newTestPipeline(api, Options{})

	if err := p.Reload(context.Background(), 5); err != nil {
		t.Fatalf("reload: %v", err)
	}

	q := api.Queries()[0]
	if len(q.IDs) != 1 || q.IDs[0] != 5 {
		t.Fatalf("expected ids [5], got %v", q.IDs)
	}
	if !strings.Contains(q.Fields, "approval_status") {
		t.Fatalf("expected moderation fields, got %q", q.Fields)
	}
	n, ok := p.Store().Get(5)
	if !ok || n.ApprovalStatus != "approved" {
		t.Fatalf("expected reloaded note, got %+v %v", n, ok)
	}
	if n.QueriedTypes[model.FilterLatest] {
		t.Fatal("reload must not tag notes")
	}
}

func TestLoadBodyIDsChunks(t *testing.T) {
	var mu gosync.Mutex
	var batches [][]model.NoteID

	api := &testutil.FakeAPI{
		GetNotesFunc: func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
			mu.Lock()
			batches = append(batches, append([]model.NoteID(nil), q.IDs...))
			mu.Unlock()

			var raws []model.RawNote
			for _, id := range q.IDs {
				raws = append(raws, rawNote(t, int(id), int(id)*10, `,"body":{"template":"t"}`))
			}
			return testutil.Page(raws...), nil
		},
	}
	p := newTestPipeline(api, Options{})

	ids := []model.NoteID{1, 2, 3, 4, 5, 6, 7}
	out, err := p.LoadBodyIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("load bodies: %v", err)
	}
	if out.Requests != 3 || out.Failed != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	sort.Slice(batches, func(i, j int) bool { return batches[i][0] < batches[j][0] })
	sizes := []int{len(batches[0]), len(batches[1]), len(batches[2])}
	if sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Fatalf("expected batches of 3,3,1, got %v", batches)
	}
	for _, q := range api.Queries() {
		if q.Fields != FieldsBodies {
			t.Fatalf("expected body fields, got %q", q.Fields)
		}
	}
	if !p.Store().AllBodiesLoaded() || p.Store().Len() != 7 {
		t.Fatalf("expected 7 notes with bodies, got %d", p.Store().Len())
	}
}

func TestLoadBodyIDsPartialFailure(t *testing.T) {
	api := &testutil.FakeAPI{
		GetNotesFunc: func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
			if q.IDs[0] == 1 {
				return nil, errors.New("boom")
			}
			return testutil.Page(rawNote(t, int(q.IDs[0]), 10, `,"body":{}`)), nil
		},
	}
	p := newTestPipeline(api, Options{BodyBatchSize: 1})

	out, err := p.LoadBodyIDs(context.Background(), []model.NoteID{1, 2})
	if err != nil {
		t.Fatalf("expected batch failure to be swallowed, got %v", err)
	}
	if out.Requests != 2 || out.Failed != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if _, ok := p.Store().Get(2); !ok {
		t.Fatal("expected successful batch to merge")
	}
}

func TestLoadBodyIDsEmpty(t *testing.T) {
	api := &testutil.FakeAPI{}
	p := newTestPipeline(api, Options{})

	if _, err := p.LoadBodyIDs(context.Background(), nil); !errors.Is(err, ErrNothingToLoad) {
		t.Fatalf("expected ErrNothingToLoad, got %v", err)
	}
	if len(api.Queries()) != 0 {
		t.Fatal("expected no request")
	}
}

func TestLoadBodiesSkipsWhenComplete(t *testing.T) {
	api := &testutil.FakeAPI{}
	p := newTestPipeline(api, Options{})
	p.Store().Merge([]model.RawNote{rawNote(t, 1, 100, `,"body":{}`)}, "")

	out, err := p.LoadBodies(context.Background(), nil)
	if err != nil {
		t.Fatalf("load bodies: %v", err)
	}
	if out.Requests != 0 || len(api.Queries()) != 0 {
		t.Fatalf("expected no requests, got %+v", out)
	}
}

func TestMarkSeen(t *testing.T) {
	api := &testutil.FakeAPI{}
	p := newTestPipeline(api, Options{})

	if err := p.MarkSeen(context.Background()); err != nil {
		t.Fatalf("mark seen on empty store: %v", err)
	}
	if len(api.Seen()) != 0 {
		t.Fatal("expected no request for empty store")
	}

	p.Store().Merge([]model.RawNote{rawNote(t, 1, 300, "")}, "")
	p.Store().ObserveLastSeen(300)
	if err := p.MarkSeen(context.Background()); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if len(api.Seen()) != 0 {
		t.Fatal("expected no request when nothing is newer")
	}

	p.Store().Merge([]model.RawNote{rawNote(t, 2, 400, "")}, "")
	if err := p.MarkSeen(context.Background()); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if seen := api.Seen(); len(seen) != 1 || seen[0] != 400 {
		t.Fatalf("expected seen [400], got %v", seen)
	}
	if _, ok := p.Store().LastSeen(); ok {
		t.Fatal("expected mark reset after success")
	}
}

func TestMarkSeenFailureKeepsMark(t *testing.T) {
	api := &testutil.FakeAPI{
		MarkSeenFunc: func(ctx context.Context, ts model.Timestamp) error {
			return errors.New("boom")
		},
	}
	p := newTestPipeline(api, Options{})
	p.Store().Merge([]model.RawNote{rawNote(t, 1, 300, "")}, "")
	p.Store().ObserveLastSeen(100)

	if err := p.MarkSeen(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if ts, ok := p.Store().LastSeen(); !ok || ts != 100 {
		t.Fatalf("expected mark kept at 100, got %d %v", ts, ok)
	}
}

func TestMarkRead(t *testing.T) {
	api := &testutil.FakeAPI{}
	stats := &recordingCounter{}
	p := newTestPipeline(api, Options{Stats: stats})
	p.Store().Merge([]model.RawNote{
		rawNote(t, 1, 100, `,"type":"like","unread":3`),
		rawNote(t, 2, 200, `,"unread":0`),
	}, "")

	if err := p.MarkRead(context.Background(), 99); !errors.Is(err, ErrUnknownNote) {
		t.Fatalf("expected ErrUnknownNote, got %v", err)
	}
	if err := p.MarkRead(context.Background(), 2); err != nil {
		t.Fatalf("mark read on read note: %v", err)
	}
	if err := p.MarkRead(context.Background(), 1); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	reads := api.Reads()
	if len(reads) != 1 || reads[0][1] != 3 {
		t.Fatalf("expected one read of note 1 with count 3, got %v", reads)
	}
	if len(stats.bumps) != 1 || stats.bumps[0] != "notes-read-type:like" {
		t.Fatalf("unexpected stats bumps: %v", stats.bumps)
	}
	if p.Store().UnreadCount() != 1 {
		t.Fatal("expected local unread count to wait for the next listing")
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]model.NoteID{1, 2, 3, 4}, 3)
	if len(got) != 2 || len(got[0]) != 3 || len(got[1]) != 1 {
		t.Fatalf("unexpected chunks: %v", got)
	}
	if got := chunk(nil, 3); len(got) != 0 {
		t.Fatalf("expected no chunks, got %v", got)
	}
}
