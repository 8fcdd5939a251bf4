package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id          INTEGER PRIMARY KEY,
	type        TEXT NOT NULL DEFAULT '',
	timestamp   INTEGER NOT NULL DEFAULT 0,
	unread      INTEGER NOT NULL DEFAULT 0,
	data        TEXT NOT NULL,
	snapshot_id TEXT NOT NULL,
	saved_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS feed_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_timestamp ON notes(timestamp);
CREATE INDEX IF NOT EXISTS idx_notes_type ON notes(type);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS sync_runs (
	id         TEXT PRIMARY KEY,
	origin     TEXT NOT NULL DEFAULT 'poll',
	fetched    INTEGER NOT NULL DEFAULT 0,
	changed    INTEGER NOT NULL DEFAULT 0 CHECK(changed IN (0, 1)),
	error      TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	ended_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
