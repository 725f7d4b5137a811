package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// currentSchemaVersion is stored in SQLite's user_version pragma. Bump this
// whenever the schema below changes; a mismatch on Open triggers a full
// recreation, since the Journal Store has no migration path of its own -
// journals are per-task and cheap to rebuild empty.
const currentSchemaVersion = 1

// sqliteBusyTimeout is the time SQLite waits when the database file is
// locked by another connection before returning SQLITE_BUSY.
const sqliteBusyTimeout = 10000 // milliseconds

func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA foreign_keys = ON;
	`, sqliteBusyTimeout))
	if err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	return nil
}

func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}

	return version, nil
}

var schemaStatements = []string{
	"DROP TABLE IF EXISTS diff_stats",
	"DROP TABLE IF EXISTS file_snapshots",
	"DROP TABLE IF EXISTS journal_entries",
	"DROP TABLE IF EXISTS task_counters",
	"DROP TABLE IF EXISTS task_metadata",
	`CREATE TABLE task_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE journal_entries (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		stack           TEXT NOT NULL,
		entry_type      TEXT NOT NULL,
		position        INTEGER NOT NULL,
		created_at      INTEGER NOT NULL,
		description     TEXT NOT NULL,
		status          TEXT NOT NULL,
		instruction     TEXT,
		affected_path   TEXT,
		previous_crc    INTEGER,
		current_crc     INTEGER,
		checkpoint_name TEXT,
		UNIQUE(stack, position)
	)`,
	`CREATE TABLE file_snapshots (
		entry_id  INTEGER NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		content   BLOB NOT NULL,
		file_size INTEGER NOT NULL,
		crc32c    INTEGER NOT NULL
	)`,
	`CREATE TABLE diff_stats (
		entry_id        INTEGER NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
		file_path       TEXT NOT NULL,
		lines_added     INTEGER NOT NULL,
		lines_deleted   INTEGER NOT NULL,
		affected_blocks INTEGER NOT NULL,
		unified_diff    TEXT NOT NULL
	)`,
	`CREATE TABLE task_counters (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	"CREATE INDEX idx_journal_stack_position ON journal_entries(stack, position)",
	"CREATE INDEX idx_journal_entry_type ON journal_entries(entry_type)",
	"CREATE INDEX idx_journal_created_at ON journal_entries(created_at)",
	"CREATE INDEX idx_snapshots_entry_id ON file_snapshots(entry_id)",
	"CREATE INDEX idx_snapshots_file_path ON file_snapshots(file_path)",
	"CREATE INDEX idx_diff_stats_entry_id ON diff_stats(entry_id)",
}

func createSchema(ctx context.Context, tx *sql.Tx) error {
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	return nil
}
