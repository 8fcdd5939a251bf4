package feed

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/tests/testutil"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func rawNote(t *testing.T, id int, ts int, extra string) model.RawNote {
	t.Helper()
	return testutil.RawNote(t, fmt.Sprintf(`{"id":%d,"timestamp":%d,"subject":{"text":"note %d"}%s}`, id, ts, id, extra))
}

func noteIDs(notes []model.Note) []model.NoteID {
	ids := make([]model.NoteID, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
	}
	return ids
}

func equalIDs(a, b []model.NoteID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMergeOrdersNewestFirst(t *testing.T) {
	s := NewStore(0, quietLogger())

	changed := s.Merge([]model.RawNote{
		rawNote(t, 1, 100, ""),
		rawNote(t, 2, 300, ""),
		rawNote(t, 3, 200, ""),
	}, "")
	if !changed {
		t.Fatal("expected merge to report change")
	}

	want := []model.NoteID{2, 3, 1}
	if got := noteIDs(s.Notes()); !equalIDs(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	if ts, ok := s.MostRecentTimestamp(); !ok || ts != 300 {
		t.Fatalf("expected most recent 300, got %d %v", ts, ok)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	s := NewStore(0, quietLogger())
	raws := []model.RawNote{rawNote(t, 1, 100, `,"unread":1`)}

	if !s.Merge(raws, model.FilterLatest) {
		t.Fatal("expected first merge to change the store")
	}
	if s.Merge(raws, model.FilterLatest) {
		t.Fatal("expected repeated merge to be a no-op")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 note, got %d", s.Len())
	}
}

func TestMergeUpdatesInPlace(t *testing.T) {
	s := NewStore(0, quietLogger())
	s.Merge([]model.RawNote{rawNote(t, 1, 100, `,"unread":1,"type":"comment"`)}, "")
	s.Merge([]model.RawNote{rawNote(t, 1, 400, `,"unread":0`)}, "")

	n, ok := s.Get(1)
	if !ok {
		t.Fatal("expected note 1")
	}
	if n.Unread != 0 || n.Timestamp != 400 || n.Type != model.TypeComment {
		t.Fatalf("unexpected note after update: %+v", n)
	}
}

func TestMergeEnforcesCapacity(t *testing.T) {
	s := NewStore(2, quietLogger())
	s.Merge([]model.RawNote{
		rawNote(t, 1, 100, ""),
		rawNote(t, 2, 300, ""),
		rawNote(t, 3, 200, ""),
	}, "")

	want := []model.NoteID{2, 3}
	if got := noteIDs(s.Notes()); !equalIDs(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, ok := s.Get(1); ok {
		t.Fatal("expected oldest note to be evicted")
	}
}

func TestMergeRemovesInvalidRecords(t *testing.T) {
	s := NewStore(0, quietLogger())
	s.Merge([]model.RawNote{rawNote(t, 1, 100, ""), rawNote(t, 2, 200, "")}, "")

	invalid := testutil.RawNote(t, `{"id":1,"subject":null}`)
	if !s.Merge([]model.RawNote{invalid}, "") {
		t.Fatal("expected removal to report change")
	}
	if _, ok := s.Get(1); ok {
		t.Fatal("expected note 1 to be removed")
	}

	unknown := testutil.RawNote(t, `{"id":9}`)
	if s.Merge([]model.RawNote{unknown}, "") {
		t.Fatal("expected invalid unknown record to be ignored")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 note, got %d", s.Len())
	}
}

func TestMergeEmitsOneEvent(t *testing.T) {
	s := NewStore(0, quietLogger())

	var events []Event
	unsubscribe := s.Subscribe(func(e Event) { events = append(events, e) })

	s.Merge([]model.RawNote{
		rawNote(t, 1, 100, ""),
		rawNote(t, 2, 200, ""),
		rawNote(t, 3, 300, ""),
	}, "")
	s.Merge([]model.RawNote{rawNote(t, 1, 100, "")}, "")

	if len(events) != 1 || events[0] != EventStoreChanged {
		t.Fatalf("expected one store-changed event, got %v", events)
	}

	unsubscribe()
	s.Merge([]model.RawNote{rawNote(t, 4, 400, "")}, "")
	if len(events) != 1 {
		t.Fatalf("expected no events after unsubscribe, got %v", events)
	}
}

func TestByFilter(t *testing.T) {
	s := NewStore(0, quietLogger())
	s.Merge([]model.RawNote{
		rawNote(t, 1, 100, `,"type":"comment","unread":1`),
		rawNote(t, 2, 200, `,"type":"like_trap"`),
		rawNote(t, 3, 300, `,"type":"follow","unread":true`),
	}, "")
	s.Merge([]model.RawNote{rawNote(t, 2, 200, "")}, model.FilterLatest)

	tests := []struct {
		filter string
		want   []model.NoteID
	}{
		{filter: model.FilterUnread, want: []model.NoteID{3, 1}},
		{filter: model.FilterLatest, want: []model.NoteID{2}},
		{filter: "comment", want: []model.NoteID{1}},
		{filter: "like", want: []model.NoteID{2}},
		{filter: "trophy", want: []model.NoteID{}},
		{filter: "bogus", want: []model.NoteID{}},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			if got := noteIDs(s.ByFilter(tt.filter)); !equalIDs(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUnreadCount(t *testing.T) {
	s := NewStore(0, quietLogger())
	s.Merge([]model.RawNote{
		rawNote(t, 1, 100, `,"unread":2`),
		rawNote(t, 2, 200, `,"unread":0`),
		rawNote(t, 3, 300, `,"unread":"1"`),
	}, "")

	if got := s.UnreadCount(); got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}
}

func TestNewSince(t *testing.T) {
	s := NewStore(0, quietLogger())
	s.Merge([]model.RawNote{
		rawNote(t, 1, 100, ""),
		rawNote(t, 2, 200, ""),
		rawNote(t, 3, 300, ""),
	}, "")

	if got := s.NewSince(); len(got) != 0 {
		t.Fatalf("expected nothing new while mark unknown, got %v", noteIDs(got))
	}

	if !s.ObserveLastSeen(150) {
		t.Fatal("expected mark to move")
	}
	want := []model.NoteID{3, 2}
	if got := noteIDs(s.NewSince()); !equalIDs(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if s.ObserveLastSeen(120) {
		t.Fatal("expected mark never to move backwards")
	}
	if ts, _ := s.LastSeen(); ts != 150 {
		t.Fatalf("expected mark 150, got %d", ts)
	}

	s.ResetLastSeen()
	if _, ok := s.LastSeen(); ok {
		t.Fatal("expected mark to be unknown after reset")
	}
	if s.NumberNew() != 0 {
		t.Fatalf("expected 0 new after reset, got %d", s.NumberNew())
	}
}

func TestAllBodiesLoaded(t *testing.T) {
	s := NewStore(0, quietLogger())
	if !s.AllBodiesLoaded() {
		t.Fatal("expected empty store to have all bodies")
	}

	s.Merge([]model.RawNote{rawNote(t, 1, 100, "")}, "")
	if s.AllBodiesLoaded() {
		t.Fatal("expected missing body")
	}

	s.Merge([]model.RawNote{rawNote(t, 1, 100, `,"body":{"template":"x"}`)}, "")
	if !s.AllBodiesLoaded() {
		t.Fatal("expected all bodies after body merge")
	}
}

func TestRestoreKeepsLiveNotes(t *testing.T) {
	s := NewStore(0, quietLogger())
	s.Merge([]model.RawNote{rawNote(t, 1, 100, `,"unread":0`)}, "")

	s.Restore([]model.Note{
		{ID: 1, Timestamp: 100, Unread: 5, Subject: &model.Subject{Text: "stale"}},
		{ID: 2, Timestamp: 50, Subject: &model.Subject{Text: "cached"}},
		{ID: 3, Timestamp: 500},
	})

	n, _ := s.Get(1)
	if n.Unread != 0 {
		t.Fatalf("expected live note to win, got unread %d", n.Unread)
	}
	want := []model.NoteID{1, 2}
	if got := noteIDs(s.Notes()); !equalIDs(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(0, quietLogger())
	s.Merge([]model.RawNote{rawNote(t, 1, 100, "")}, model.FilterLatest)

	n, _ := s.Get(1)
	n.QueriedTypes["like"] = true
	n.Subject.Text = "changed"

	again, _ := s.Get(1)
	if again.QueriedTypes["like"] || again.Subject.Text == "changed" {
		t.Fatal("expected store to be unaffected by caller mutation")
	}
}
