package notelist

import (
	"encoding/json"
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/keys"
	"github.com/nhle/notefeed/internal/model"
)

func newTestStore(t *testing.T, notes ...string) *feed.Store {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	s := feed.NewStore(0, log)

	raws := make([]model.RawNote, len(notes))
	for i, js := range notes {
		if err := json.Unmarshal([]byte(js), &raws[i]); err != nil {
			t.Fatalf("decode note: %v", err)
		}
	}
	s.Merge(raws, model.FilterLatest)
	return s
}

func TestRefreshListsActiveFilter(t *testing.T) {
	s := newTestStore(t,
		`{"id":1,"type":"comment","timestamp":100,"unread":1,"subject":{"text":"c"}}`,
		`{"id":2,"type":"like","timestamp":200,"subject":{"text":"l"}}`,
	)
	m := New(s, keys.DefaultKeyMap(), 80, 20)
	m.Refresh()

	if id, ok := m.Selected(); !ok || id != 2 {
		t.Fatalf("expected newest note selected, got %d %v", id, ok)
	}

	m, cmd := m.SelectFilter(1)
	if m.Filter() != model.FilterUnread {
		t.Fatalf("expected unread filter, got %s", m.Filter())
	}
	if cmd == nil {
		t.Fatal("expected a filter change command")
	}
	if id, ok := m.Selected(); !ok || id != 1 {
		t.Fatalf("expected unread note selected, got %d %v", id, ok)
	}
}

func TestSelectKeyOpensNote(t *testing.T) {
	s := newTestStore(t, `{"id":5,"type":"follow","timestamp":100,"subject":{"text":"f"}}`)
	m := New(s, keys.DefaultKeyMap(), 80, 20)
	m.Refresh()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command for enter")
	}
	msg, ok := cmd().(SelectedNoteMsg)
	if !ok || msg.NoteID != 5 {
		t.Fatalf("expected SelectedNoteMsg for note 5, got %+v", msg)
	}
}

func TestFilterCycleWraps(t *testing.T) {
	m := New(newTestStore(t), keys.DefaultKeyMap(), 80, 20)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.FilterIndex() != len(Filters)-1 {
		t.Fatalf("expected last filter, got %d", m.FilterIndex())
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.FilterIndex() != 0 {
		t.Fatalf("expected first filter, got %d", m.FilterIndex())
	}
}

func TestEmptyState(t *testing.T) {
	m := New(newTestStore(t), keys.DefaultKeyMap(), 80, 20)
	m.Refresh()

	if m.View() == "" {
		t.Fatal("expected empty state text")
	}
}
