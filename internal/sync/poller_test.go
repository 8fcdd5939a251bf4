package sync

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
	"github.com/nhle/notefeed/tests/testutil"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestPipeline(api source.API) *feed.Pipeline {
	log := quietLogger()
	return feed.NewPipeline(feed.NewStore(0, log), api, feed.Options{Logger: log})
}

func feedAPI(t *testing.T) *testutil.FakeAPI {
	t.Helper()
	return &testutil.FakeAPI{
		GetNotesFunc: func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
			if len(q.IDs) > 0 {
				return testutil.Page(
					testutil.RawNote(t, `{"id":1,"timestamp":100,"subject":{"text":"a"},"body":{"template":"t"}}`),
					testutil.RawNote(t, `{"id":2,"timestamp":200,"subject":{"text":"b"},"body":{"template":"t"}}`),
				), nil
			}
			page := testutil.Page(
				testutil.RawNote(t, `{"id":1,"timestamp":100,"subject":{"text":"a"}}`),
				testutil.RawNote(t, `{"id":2,"timestamp":200,"subject":{"text":"b"},"unread":1}`),
			)
			page.LastSeenTime = 150
			return page, nil
		},
	}
}

func TestRunOnceSavesSnapshot(t *testing.T) {
	cache := testutil.NewTestStore(t)
	p := New(newTestPipeline(feedAPI(t)), cache, Options{LoadBodies: true, Logger: quietLogger()})

	msg := p.RunOnce(context.Background(), TriggerManual)
	if msg.Error != nil {
		t.Fatalf("run once: %v", msg.Error)
	}
	if msg.Fetched != 2 || !msg.Changed || msg.NewCount != 1 {
		t.Fatalf("unexpected result: %+v", msg)
	}
	if msg.Bodies.Requests != 1 || msg.Bodies.Failed != 0 {
		t.Fatalf("unexpected body outcome: %+v", msg.Bodies)
	}
	if st := p.Status(); st.State != SyncIdle || st.LastSync.IsZero() {
		t.Fatalf("unexpected status: %+v", st)
	}

	notes, err := cache.LoadNotes(context.Background())
	if err != nil {
		t.Fatalf("load cached notes: %v", err)
	}
	if len(notes) != 2 || notes[0].ID != 2 || !notes[0].HasBody() {
		t.Fatalf("unexpected cached notes: %+v", notes)
	}

	runs, err := cache.RecentSyncs(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent syncs: %v", err)
	}
	if len(runs) != 1 || runs[0].Trigger != TriggerManual || runs[0].Fetched != 2 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	restored := New(newTestPipeline(&testutil.FakeAPI{}), cache, Options{Logger: quietLogger()})
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	s := restored.pipeline.Store()
	if s.Len() != 2 {
		t.Fatalf("expected 2 restored notes, got %d", s.Len())
	}
	if ts, ok := s.LastSeen(); !ok || ts != 150 {
		t.Fatalf("expected restored mark 150, got %d %v", ts, ok)
	}
	if s.NumberNew() != 1 {
		t.Fatalf("expected 1 new note after restore, got %d", s.NumberNew())
	}
}

func TestRunOnceWithoutBodies(t *testing.T) {
	api := feedAPI(t)
	p := New(newTestPipeline(api), nil, Options{Logger: quietLogger()})

	msg := p.RunOnce(context.Background(), TriggerCLI)
	if msg.Error != nil {
		t.Fatalf("run once: %v", msg.Error)
	}
	if msg.Bodies.Requests != 0 {
		t.Fatalf("expected no body requests, got %+v", msg.Bodies)
	}
	if len(api.Queries()) != 1 {
		t.Fatalf("expected a single listing request, got %d", len(api.Queries()))
	}
}

func TestRunOnceAuthError(t *testing.T) {
	cache := testutil.NewTestStore(t)
	api := &testutil.FakeAPI{
		GetNotesFunc: func(ctx context.Context, q source.NotesQuery) (*source.NotesPage, error) {
			return nil, &source.AuthError{Service: "test", Message: "expired"}
		},
	}
	p := New(newTestPipeline(api), cache, Options{Logger: quietLogger()})

	msg := p.RunOnce(context.Background(), TriggerPoll)
	if msg.AuthError == nil {
		t.Fatalf("expected auth error, got %+v", msg)
	}
	if st := p.Status(); st.State != SyncError || st.Error == nil {
		t.Fatalf("unexpected status: %+v", st)
	}

	runs, err := cache.RecentSyncs(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent syncs: %v", err)
	}
	if len(runs) != 1 || runs[0].Error == "" {
		t.Fatalf("expected failed run to be recorded, got %+v", runs)
	}
}

func TestRestoreFromSeededCache(t *testing.T) {
	cache := testutil.NewSeededStore(t, 200,
		model.Note{ID: 1, Timestamp: 100, Subject: &model.Subject{Text: "old"}},
		model.Note{ID: 2, Timestamp: 300, Subject: &model.Subject{Text: "new"}},
		model.Note{ID: 3, Timestamp: 400},
	)
	p := New(newTestPipeline(&testutil.FakeAPI{}), cache, Options{Logger: quietLogger()})

	if err := p.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	s := p.pipeline.Store()
	if s.Len() != 2 {
		t.Fatalf("expected notes without a subject to be skipped, got %d", s.Len())
	}
	if s.NumberNew() != 1 {
		t.Fatalf("expected 1 new note, got %d", s.NumberNew())
	}
}

func TestRestoreWithoutCache(t *testing.T) {
	p := New(newTestPipeline(&testutil.FakeAPI{}), nil, Options{})
	if err := p.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestRefreshDoesNotBlock(t *testing.T) {
	p := New(newTestPipeline(&testutil.FakeAPI{}), nil, Options{})
	for i := 0; i < 32; i++ {
		p.Refresh()
	}
	if got := len(p.triggerCh); got != cap(p.triggerCh) {
		t.Fatalf("expected queue to fill to %d, got %d", cap(p.triggerCh), got)
	}
}

func TestSyncStateString(t *testing.T) {
	if SyncRunning.String() != "running" || SyncState(9).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
