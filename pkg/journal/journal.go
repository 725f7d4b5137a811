// Package journal implements the Journal Store: a schema-versioned
// embedded SQLite database holding one task's undo/redo history, file
// snapshots, pre-computed diff stats, and counters. There is one database
// per persistent task; the ephemeral "default" task and tests use an
// in-memory database whose lifetime is the process.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// Stack identifies which of the two journal stacks an entry belongs to.
type Stack string

const (
	StackUndo Stack = "UNDO"
	StackRedo Stack = "REDO"
)

// EntryType is the kind of event a journal entry records.
type EntryType string

const (
	EntryTransaction    EntryType = "TRANSACTION"
	EntryCheckpoint     EntryType = "CHECKPOINT"
	EntryExternalChange EntryType = "EXTERNAL_CHANGE"
)

// Status is a journal entry's committed/rolled-back state.
type Status string

const (
	StatusCommitted  Status = "COMMITTED"
	StatusRolledBack Status = "ROLLED_BACK"
)

// Entry is one row of journal_entries.
type Entry struct {
	ID             int64
	Stack          Stack
	Type           EntryType
	Position       int
	CreatedAt      time.Time
	Description    string
	Status         Status
	Instruction    string
	AffectedPath   string
	PreviousCrc    uint32
	HasPreviousCrc bool
	CurrentCrc     uint32
	HasCurrentCrc  bool
	CheckpointName string
}

// FileSnapshot is one row of file_snapshots.
type FileSnapshot struct {
	EntryID  int64
	FilePath string
	Content  []byte
	FileSize int64
	Crc32c   uint32
}

// DiffStat is one row of diff_stats.
type DiffStat struct {
	EntryID        int64
	FilePath       string
	LinesAdded     int
	LinesDeleted   int
	AffectedBlocks int
	UnifiedDiff    string
}

// Store wraps a single task's journal database.
type Store struct {
	db *sql.DB
}

// InMemory opens a Store backed by a private in-memory SQLite database,
// used for the "default" ephemeral task and in tests.
func InMemory(ctx context.Context) (*Store, error) {
	return open(ctx, ":memory:")
}

// Open opens (creating if necessary) the journal database for a persistent
// task under dir (typically <state-root>/tasks/{taskId}/journal.sqlite).
func Open(ctx context.Context, dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("open journal: directory is empty")
	}

	return open(ctx, filepath.Join(dir, "journal.sqlite"))
}

func open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	store := &Store{db: db}

	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

// ensureSchema creates the schema on first use (or recreates it if the
// stored version does not match currentSchemaVersion). Initialization is
// idempotent.
func (s *Store) ensureSchema(ctx context.Context) error {
	version, err := storedSchemaVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if version == currentSchemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure schema: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createSchema(ctx, tx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("ensure schema: set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure schema: commit: %w", err)
	}

	return nil
}

// Close releases the underlying database handle. Safe to call on a nil
// Store; idempotent.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}
