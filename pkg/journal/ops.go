package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AppendEntry inserts entry at the next dense position on its stack and
// returns the assigned entry ID and position.
func (s *Store) AppendEntry(ctx context.Context, entry Entry) (id int64, position int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("append entry: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	position, err = nextPosition(ctx, tx, entry.Stack)
	if err != nil {
		return 0, 0, fmt.Errorf("append entry: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries
			(stack, entry_type, position, created_at, description, status,
			 instruction, affected_path, previous_crc, current_crc, checkpoint_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.Stack), string(entry.Type), position, entry.CreatedAt.Unix(),
		entry.Description, string(entry.Status),
		nullableString(entry.Instruction), nullableString(entry.AffectedPath),
		nullableUint32(entry.PreviousCrc, entry.HasPreviousCrc),
		nullableUint32(entry.CurrentCrc, entry.HasCurrentCrc),
		nullableString(entry.CheckpointName),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("append entry: insert: %w", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("append entry: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("append entry: commit: %w", err)
	}

	return id, position, nil
}

func nextPosition(ctx context.Context, tx *sql.Tx, stack Stack) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM journal_entries WHERE stack = ?`, string(stack))

	var next int
	if err := row.Scan(&next); err != nil {
		return 0, fmt.Errorf("next position: %w", err)
	}

	return next, nil
}

// MarkStatus flips an entry's committed/rolled-back status.
func (s *Store) MarkStatus(ctx context.Context, entryID int64, status Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE journal_entries SET status = ? WHERE id = ?`, string(status), entryID)
	if err != nil {
		return fmt.Errorf("mark status: %w", err)
	}

	return nil
}

// PeekTop returns the entry at the highest position on stack without
// removing it, or (Entry{}, false, nil) if the stack is empty.
func (s *Store) PeekTop(ctx context.Context, stack Stack) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stack, entry_type, position, created_at, description, status,
		       instruction, affected_path, previous_crc, current_crc, checkpoint_name
		FROM journal_entries
		WHERE stack = ?
		ORDER BY position DESC
		LIMIT 1`, string(stack))

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}

	if err != nil {
		return Entry{}, false, fmt.Errorf("peek top: %w", err)
	}

	return entry, true, nil
}

// PopTop removes and returns the entry at the highest position on stack.
func (s *Store) PopTop(ctx context.Context, stack Stack) (Entry, bool, error) {
	entry, ok, err := s.PeekTop(ctx, stack)
	if err != nil || !ok {
		return entry, ok, err
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = ?`, entry.ID)
	if err != nil {
		return Entry{}, false, fmt.Errorf("pop top: %w", err)
	}

	return entry, true, nil
}

// PushToOppositeStack re-inserts entry (typically one just popped from
// UNDO) onto the other stack, at that stack's next dense position. Used
// when undo moves a transaction from UNDO to REDO, or redo moves it back.
func (s *Store) PushToOppositeStack(ctx context.Context, entry Entry) (int64, int, error) {
	opposite := StackRedo
	if entry.Stack == StackRedo {
		opposite = StackUndo
	}

	entry.Stack = opposite

	return s.AppendEntry(ctx, entry)
}

// TruncateRedo deletes every entry on the REDO stack (and its snapshots and
// diff stats, via ON DELETE CASCADE), called whenever a new transaction
// commits.
func (s *Store) TruncateRedo(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE stack = ?`, string(StackRedo))
	if err != nil {
		return fmt.Errorf("truncate redo: %w", err)
	}

	return nil
}

// GetMetadata reads a task_metadata value, returning ("", false, nil) if
// absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM task_metadata WHERE key = ?`, key)

	var value string

	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("get metadata %q: %w", key, err)
	}

	return value, true, nil
}

// SetMetadata upserts a task_metadata value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}

	return nil
}

// BumpCounter increments (creating if absent) task_counters[name] by delta
// and returns its new value.
func (s *Store) BumpCounter(ctx context.Context, name string, delta int) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`, name, delta)
	if err != nil {
		return 0, fmt.Errorf("bump counter %q: %w", name, err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT value FROM task_counters WHERE name = ?`, name)

	var value int64
	if err := row.Scan(&value); err != nil {
		return 0, fmt.Errorf("bump counter %q: read back: %w", name, err)
	}

	return value, nil
}

// AttachSnapshot records a file's backed-up content as a child of entryID.
func (s *Store) AttachSnapshot(ctx context.Context, entryID int64, snapshot FileSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_snapshots (entry_id, file_path, content, file_size, crc32c)
		VALUES (?, ?, ?, ?, ?)`,
		entryID, snapshot.FilePath, snapshot.Content, snapshot.FileSize, snapshot.Crc32c)
	if err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}

	return nil
}

// Snapshots returns every file snapshot attached to entryID.
func (s *Store) Snapshots(ctx context.Context, entryID int64) ([]FileSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, file_path, content, file_size, crc32c
		FROM file_snapshots WHERE entry_id = ?`, entryID)
	if err != nil {
		return nil, fmt.Errorf("snapshots: %w", err)
	}
	defer rows.Close()

	var out []FileSnapshot

	for rows.Next() {
		var snap FileSnapshot
		if err := rows.Scan(&snap.EntryID, &snap.FilePath, &snap.Content, &snap.FileSize, &snap.Crc32c); err != nil {
			return nil, fmt.Errorf("snapshots: scan: %w", err)
		}

		out = append(out, snap)
	}

	return out, rows.Err()
}

// AttachDiff records a pre-computed diff stat as a child of entryID.
func (s *Store) AttachDiff(ctx context.Context, entryID int64, diff DiffStat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diff_stats (entry_id, file_path, lines_added, lines_deleted, affected_blocks, unified_diff)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entryID, diff.FilePath, diff.LinesAdded, diff.LinesDeleted, diff.AffectedBlocks, diff.UnifiedDiff)
	if err != nil {
		return fmt.Errorf("attach diff: %w", err)
	}

	return nil
}
