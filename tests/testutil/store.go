package testutil

import (
	"context"
	"testing"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/store"
)

// NewTestStore opens an in-memory snapshot cache that is closed when the
// test ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening snapshot cache: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing snapshot cache: %v", err)
		}
	})
	return s
}

// NewSeededStore returns a cache that already holds a snapshot of notes
// and, when lastSeen is non-zero, a known last-seen mark.
func NewSeededStore(t *testing.T, lastSeen model.Timestamp, notes ...model.Note) *store.SQLiteStore {
	t.Helper()

	s := NewTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveNotes(ctx, notes); err != nil {
		t.Fatalf("seeding notes: %v", err)
	}
	if lastSeen != 0 {
		st := store.FeedState{LastSeen: lastSeen, LastSeenKnown: true}
		if err := s.SaveFeedState(ctx, st); err != nil {
			t.Fatalf("seeding feed state: %v", err)
		}
	}
	return s
}
