// Package txn implements the Transaction Manager: the undo/redo stacks,
// nested transactions, checkpoints, smart undo across renames, and the
// external-change entries that make an outside edit reversible.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ntsdev/nts/pkg/core"
	"github.com/ntsdev/nts/pkg/extchange"
	"github.com/ntsdev/nts/pkg/fs"
	"github.com/ntsdev/nts/pkg/journal"
	"github.com/ntsdev/nts/pkg/lineage"
	"github.com/ntsdev/nts/pkg/textutil"
	"github.com/ntsdev/nts/pkg/token"
)

// snapshot is a buffered, not-yet-persisted backup of one file's state at
// the moment a transaction's Backup was called for it.
type snapshot struct {
	path      string
	existed   bool
	content   []byte
	crc32c    uint32
	charset   textutil.Charset
	lineCount int
}

// openTxn is one level of (possibly nested) open transaction.
type openTxn struct {
	description string
	instruction string
	snapshots   []snapshot
	seen        map[string]bool // path -> already backed up at this level
	parent      *openTxn
}

// UndoResult reports what an Undo or Redo call actually did, including
// whether smart-undo had to follow a rename chain to find the file's
// current path.
type UndoResult struct {
	EntryID      int64
	Description  string
	OriginalPath string
	ResolvedPath string
	FollowedMove bool
	Deleted      bool
}

// Manager coordinates the Journal Store, Lineage Tracker, External-change
// Tracker, and Token Tracker around a single task's mutations. It
// serializes mutations with a mutex, matching §5's "single-writer-per-task"
// model.
type Manager struct {
	mu sync.Mutex

	store    *journal.Store
	lineage  *lineage.Tracker
	external *extchange.Tracker
	tokens   *token.Tracker
	writer   *fs.AtomicWriter

	current *openTxn
}

// New creates a Manager wired to one task's trackers and Safe I/O writer.
func New(store *journal.Store, lineageTracker *lineage.Tracker, external *extchange.Tracker, tokens *token.Tracker, writer *fs.AtomicWriter) *Manager {
	return &Manager{
		store:    store,
		lineage:  lineageTracker,
		external: external,
		tokens:   tokens,
		writer:   writer,
	}
}

// StartTransaction opens a logical transaction. If one is already open, the
// new one nests: its snapshots are merged into the outer one on commit, and
// a nested rollback restores only the nested layer.
func (m *Manager) StartTransaction(description, instruction string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = &openTxn{
		description: description,
		instruction: instruction,
		seen:        make(map[string]bool),
		parent:      m.current,
	}
}

// Backup captures path's current bytes, CRC, charset, and line count into
// the open transaction's in-memory buffer, unless this path has already
// been backed up at this nesting level (the first backup per level wins,
// so the snapshot always reflects pre-transaction state).
func (m *Manager) Backup(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return core.ErrNoActiveTransaction
	}

	if m.current.seen[path] {
		return nil
	}

	content, err := m.writer.ReadAll(ctx, path)
	existed := err == nil

	if err != nil && !fs.IsNotExist(err) {
		return fmt.Errorf("backup %q: %w", path, err)
	}

	detect := textutil.DetectEncoding(content)
	text := string(textutil.StripBOM(content, detect.Charset))
	lineCount := len(textutil.SplitLines(text))

	m.current.seen[path] = true
	m.current.snapshots = append(m.current.snapshots, snapshot{
		path:      path,
		existed:   existed,
		content:   content,
		crc32c:    textutil.Crc32cOfString(text),
		charset:   detect.Charset,
		lineCount: lineCount,
	})

	return nil
}

// Commit closes the currently open transaction. A nested commit merges its
// buffered snapshots into the enclosing transaction and returns without
// touching the journal. An outermost commit creates a new TRANSACTION
// journal entry, persists every buffered snapshot as its child, truncates
// the redo stack, and bumps totalEdits.
func (m *Manager) Commit(ctx context.Context) (*journal.Entry, error) {
	m.mu.Lock()
	txnToCommit := m.current
	if txnToCommit == nil {
		m.mu.Unlock()

		return nil, core.ErrNoActiveTransaction
	}

	m.current = txnToCommit.parent
	m.mu.Unlock()

	if txnToCommit.parent != nil {
		mergeInto(txnToCommit.parent, txnToCommit)

		return nil, nil
	}

	entry := journal.Entry{
		Stack:       journal.StackUndo,
		Type:        journal.EntryTransaction,
		CreatedAt:   time.Now(),
		Description: txnToCommit.description,
		Status:      journal.StatusCommitted,
		Instruction: txnToCommit.instruction,
	}

	id, _, err := m.store.AppendEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	for _, snap := range txnToCommit.snapshots {
		err := m.store.AttachSnapshot(ctx, id, journal.FileSnapshot{
			FilePath: snap.path,
			Content:  snap.content,
			FileSize: int64(len(snap.content)),
			Crc32c:   snap.crc32c,
		})
		if err != nil {
			return nil, fmt.Errorf("commit: attach snapshot %q: %w", snap.path, err)
		}
	}

	if err := m.store.TruncateRedo(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if _, err := m.store.BumpCounter(ctx, "totalEdits", 1); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	entry.ID = id

	return &entry, nil
}

// mergeInto appends child's buffered snapshots onto parent, skipping any
// path parent already backed up (parent's snapshot, being older, is the
// one that must survive to a rollback).
func mergeInto(parent, child *openTxn) {
	for _, snap := range child.snapshots {
		if parent.seen[snap.path] {
			continue
		}

		parent.seen[snap.path] = true
		parent.snapshots = append(parent.snapshots, snap)
	}
}

// Rollback discards the currently open transaction, restoring every
// buffered snapshot to disk (deleting the file if the snapshot recorded
// "did not exist before this transaction").
func (m *Manager) Rollback(ctx context.Context) error {
	m.mu.Lock()
	txnToRollback := m.current
	if txnToRollback == nil {
		m.mu.Unlock()

		return core.ErrNoActiveTransaction
	}

	m.current = txnToRollback.parent
	m.mu.Unlock()

	for i := len(txnToRollback.snapshots) - 1; i >= 0; i-- {
		if err := m.restoreSnapshot(ctx, snapshotView(txnToRollback.snapshots[i])); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}

	return nil
}

// HasOpenTransaction reports whether a transaction is currently open.
func (m *Manager) HasOpenTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != nil
}
