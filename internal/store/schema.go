package store

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 2

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- Events delivered by the watcher, one row per Poll that returned an event.
CREATE TABLE IF NOT EXISTS events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	watchpoint_id  INTEGER NOT NULL,
	watch_path     TEXT    NOT NULL,
	relative_name  TEXT    NOT NULL,
	filename       TEXT    NOT NULL,
	delivered_at   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_delivered_at ON events(delivered_at);
CREATE INDEX IF NOT EXISTS idx_events_watch_path ON events(watch_path);

-- Key-value store for daemon metadata (schema version, cursors, etc).
CREATE TABLE IF NOT EXISTS daemon_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`,

	2: `
-- One row per daemon run; events point at the run that delivered them.
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	backend     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	stopped_at  TEXT NOT NULL DEFAULT ''
);

ALTER TABLE events ADD COLUMN run_id TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
`,
}
