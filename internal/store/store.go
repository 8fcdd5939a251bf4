package store

import (
	"context"
	"time"

	"github.com/nhle/notefeed/internal/model"
)

// FeedState is the persisted part of the feed that lives outside the notes
// themselves.
type FeedState struct {
	LastSeen      model.Timestamp
	LastSeenKnown bool
	SyncedAt      time.Time
}

// SyncRun records one background refresh.
type SyncRun struct {
	ID        string
	Trigger   string // "poll", "manual" or "cli"
	Fetched   int
	Changed   bool
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Store persists a snapshot of the notification feed between sessions.
// The in-memory feed remains the source of truth while running.
type Store interface {
	// SaveNotes replaces the cached notes with notes and returns the id of
	// the new snapshot.
	SaveNotes(ctx context.Context, notes []model.Note) (string, error)
	// LoadNotes returns the cached notes, newest first.
	LoadNotes(ctx context.Context) ([]model.Note, error)

	SaveFeedState(ctx context.Context, st FeedState) error
	LoadFeedState(ctx context.Context) (FeedState, error)

	RecordSync(ctx context.Context, run SyncRun) error
	RecentSyncs(ctx context.Context, limit int) ([]SyncRun, error)

	Close() error
}
