package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/notefeed/internal/model"
)

// Keys of the feed_state table.
const (
	stateLastSeen = "last_seen"
	stateSyncedAt = "synced_at"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveNotes replaces the cached snapshot with notes in one transaction.
func (s *SQLiteStore) SaveNotes(ctx context.Context, notes []model.Note) (string, error) {
	snapshotID := uuid.New().String()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notes"); err != nil {
		return "", fmt.Errorf("clearing notes: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO notes (id, type, timestamp, unread, data, snapshot_id, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, n := range notes {
		data, err := json.Marshal(n)
		if err != nil {
			return "", fmt.Errorf("marshaling note %d: %w", n.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			int64(n.ID), n.Type, int64(n.Timestamp), int64(n.Unread),
			string(data), snapshotID, now,
		)
		if err != nil {
			return "", fmt.Errorf("inserting note %d: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing snapshot: %w", err)
	}
	return snapshotID, nil
}

// noteRow is the stored form of a note.
type noteRow struct {
	ID   int64  `db:"id"`
	Data string `db:"data"`
}

// LoadNotes returns the cached notes ordered by timestamp descending.
func (s *SQLiteStore) LoadNotes(ctx context.Context) ([]model.Note, error) {
	var rows []noteRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, data FROM notes ORDER BY timestamp DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}

	notes := make([]model.Note, 0, len(rows))
	for _, r := range rows {
		var n model.Note
		if err := json.Unmarshal([]byte(r.Data), &n); err != nil {
			return nil, fmt.Errorf("unmarshaling note %d: %w", r.ID, err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// SaveFeedState writes the seen mark and the last sync time. An unknown
// seen mark removes the stored value.
func (s *SQLiteStore) SaveFeedState(ctx context.Context, st FeedState) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if st.LastSeenKnown {
		if err := putState(ctx, tx, stateLastSeen, strconv.FormatInt(int64(st.LastSeen), 10), now); err != nil {
			return err
		}
	} else if _, err := tx.ExecContext(ctx, "DELETE FROM feed_state WHERE key = ?", stateLastSeen); err != nil {
		return fmt.Errorf("clearing %s: %w", stateLastSeen, err)
	}

	if !st.SyncedAt.IsZero() {
		if err := putState(ctx, tx, stateSyncedAt, st.SyncedAt.UTC().Format(time.RFC3339), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func putState(ctx context.Context, tx *sqlx.Tx, key, value string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO feed_state (key, value, updated_at)
		VALUES (?, ?, ?)`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// LoadFeedState reads the persisted feed state. Missing keys leave the
// zero value.
func (s *SQLiteStore) LoadFeedState(ctx context.Context) (FeedState, error) {
	var st FeedState

	lastSeen, err := s.getState(ctx, stateLastSeen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return FeedState{}, err
	default:
		ts, err := strconv.ParseInt(lastSeen, 10, 64)
		if err != nil {
			return FeedState{}, fmt.Errorf("parsing %s: %w", stateLastSeen, err)
		}
		st.LastSeen = model.Timestamp(ts)
		st.LastSeenKnown = true
	}

	syncedAt, err := s.getState(ctx, stateSyncedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return FeedState{}, err
	default:
		t, err := time.Parse(time.RFC3339, syncedAt)
		if err != nil {
			return FeedState{}, fmt.Errorf("parsing %s: %w", stateSyncedAt, err)
		}
		st.SyncedAt = t
	}

	return st, nil
}

func (s *SQLiteStore) getState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM feed_state WHERE key = ?", key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, err
}

// RecordSync stores one refresh run. A run without an ID gets a new UUID.
func (s *SQLiteStore) RecordSync(ctx context.Context, run SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Trigger == "" {
		run.Trigger = "poll"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, origin, fetched, changed, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger, run.Fetched, boolToInt(run.Changed), run.Error,
		run.StartedAt.UTC(), run.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording sync run %s: %w", run.ID, err)
	}
	return nil
}

// RecentSyncs returns up to limit runs, newest first.
func (s *SQLiteStore) RecentSyncs(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, origin, fetched, changed, error, started_at, ended_at
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanSyncRun scans a sync run row from a sqlx.Rows result set.
func scanSyncRun(rows *sqlx.Rows) (SyncRun, error) {
	var (
		run     SyncRun
		changed int
	)

	err := rows.Scan(
		&run.ID, &run.Trigger, &run.Fetched, &changed, &run.Error,
		&run.StartedAt, &run.EndedAt,
	)
	if err != nil {
		return SyncRun{}, fmt.Errorf("scanning sync run row: %w", err)
	}
	run.Changed = changed != 0

	return run, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
