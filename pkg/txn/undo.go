package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/ntsdev/nts/pkg/core"
	"github.com/ntsdev/nts/pkg/fs"
	"github.com/ntsdev/nts/pkg/journal"
	"github.com/ntsdev/nts/pkg/textutil"
)

// snapshotRestore is the minimal shape restoreSnapshot needs, satisfied by
// both the in-memory buffered snapshot (during Rollback) and a
// journal.FileSnapshot read back from the database (during Undo/Redo).
type snapshotRestore struct {
	path    string
	existed bool
	content []byte
}

func snapshotView(s snapshot) snapshotRestore {
	return snapshotRestore{path: s.path, existed: s.existed, content: s.content}
}

// restoreSnapshot writes back (or deletes) a file per one buffered or
// persisted snapshot, then updates the lineage CRC history and the
// external-change tracker's view of the file so it is not mistaken for an
// outside edit on the next read.
func (m *Manager) restoreSnapshot(ctx context.Context, s snapshotRestore) error {
	if !s.existed {
		if err := m.writer.Delete(ctx, s.path); err != nil {
			return fmt.Errorf("restore %q: %w", s.path, err)
		}

		m.external.Forget(s.path)

		return nil
	}

	if err := m.writer.Write(ctx, s.path, s.content); err != nil {
		return fmt.Errorf("restore %q: %w", s.path, err)
	}

	detect := textutil.DetectEncoding(s.content)
	text := string(textutil.StripBOM(s.content, detect.Charset))
	lineCount := len(textutil.SplitLines(text))

	m.lineage.UpdateCrc(s.path, text)
	m.external.RegisterSnapshot(s.path, text, detect.Charset, lineCount)

	return nil
}

// CreateCheckpoint appends a named CHECKPOINT marker with no snapshots.
func (m *Manager) CreateCheckpoint(ctx context.Context, name string) (int64, error) {
	entry := journal.Entry{
		Stack:          journal.StackUndo,
		Type:           journal.EntryCheckpoint,
		CreatedAt:      time.Now(),
		Description:    "checkpoint: " + name,
		Status:         journal.StatusCommitted,
		CheckpointName: name,
	}

	id, _, err := m.store.AppendEntry(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("create checkpoint %q: %w", name, err)
	}

	return id, nil
}

// RollbackToCheckpoint pops and undoes every TRANSACTION entry above the
// named checkpoint (newest-first, since each pop takes the current top),
// leaving the checkpoint marker itself in place.
func (m *Manager) RollbackToCheckpoint(ctx context.Context, name string) ([]UndoResult, error) {
	var results []UndoResult

	for {
		top, ok, err := m.store.PeekTop(ctx, journal.StackUndo)
		if err != nil {
			return results, fmt.Errorf("rollback to checkpoint %q: %w", name, err)
		}

		if !ok {
			return results, fmt.Errorf("rollback to checkpoint %q: %w", name, core.ErrCheckpointNotFound)
		}

		if top.Type == journal.EntryCheckpoint && top.CheckpointName == name {
			return results, nil
		}

		result, err := m.Undo(ctx)
		if err != nil {
			return results, fmt.Errorf("rollback to checkpoint %q: %w", name, err)
		}

		results = append(results, result)
	}
}

// Undo pops the undo stack's top entry. CHECKPOINT markers are discarded
// (the search continues to the entry beneath them); TRANSACTION and
// EXTERNAL_CHANGE entries have their snapshots written back, are flipped to
// ROLLED_BACK, and are pushed onto the redo stack.
func (m *Manager) Undo(ctx context.Context) (UndoResult, error) {
	return m.moveTop(ctx, journal.StackUndo, true)
}

// Redo mirrors Undo against the redo stack.
func (m *Manager) Redo(ctx context.Context) (UndoResult, error) {
	return m.moveTop(ctx, journal.StackRedo, false)
}

func (m *Manager) moveTop(ctx context.Context, stack journal.Stack, isUndo bool) (UndoResult, error) {
	for {
		top, ok, err := m.store.PeekTop(ctx, stack)
		if err != nil {
			return UndoResult{}, err
		}

		if !ok {
			return UndoResult{}, errNothingFor(stack)
		}

		if top.Type == journal.EntryCheckpoint {
			if _, _, err := m.store.PopTop(ctx, stack); err != nil {
				return UndoResult{}, err
			}

			continue
		}

		// Snapshots must be read before PopTop: popping deletes the entry
		// row, and file_snapshots cascades off that delete.
		snapshots, err := m.store.Snapshots(ctx, top.ID)
		if err != nil {
			return UndoResult{}, fmt.Errorf("load snapshots for entry %d: %w", top.ID, err)
		}

		popped, _, err := m.store.PopTop(ctx, stack)
		if err != nil {
			return UndoResult{}, err
		}

		result, captured, err := m.restoreAll(ctx, snapshots)
		if err != nil {
			return UndoResult{}, err
		}

		newStatus := journal.StatusRolledBack
		if !isUndo {
			newStatus = journal.StatusCommitted
		}

		popped.Status = newStatus

		newID, _, err := m.store.PushToOppositeStack(ctx, popped)
		if err != nil {
			return UndoResult{}, err
		}

		// Attach what restoreAll captured from disk just before overwriting it,
		// not the snapshot just popped - the opposite stack's top must reverse
		// *this* move, i.e. bring back the state this call just replaced.
		for _, snap := range captured {
			if err := m.store.AttachSnapshot(ctx, newID, snap); err != nil {
				return UndoResult{}, fmt.Errorf("re-attach snapshot for entry %d: %w", newID, err)
			}
		}

		if isUndo {
			if _, err := m.store.BumpCounter(ctx, "totalUndos", 1); err != nil {
				return UndoResult{}, err
			}
		}

		result.EntryID = newID
		result.Description = popped.Description

		return result, nil
	}
}

func errNothingFor(stack journal.Stack) error {
	if stack == journal.StackUndo {
		return core.ErrNothingToUndo
	}

	return core.ErrNothingToRedo
}

// restoreAll writes back every given snapshot, applying smart-undo through
// resolveCurrentPath: if the Lineage Tracker records a rename for a
// snapshot's path, the file's current path is taken from a record whose CRC
// history contains the snapshot's CRC; if no record matches, the recorded
// path is used. The rename chain's current path is not consulted on its own.
//
// It also returns, per file touched, a snapshot of the content that was on
// disk immediately before restoreSnapshot overwrote it. That captured
// state - not the snapshot just restored - is what the caller must attach
// to the opposite stack: it is what a subsequent move back across the
// stacks needs to reapply, since the snapshot just restored is already
// sitting on disk and re-attaching it verbatim would make that move a
// no-op instead of reversing this one.
func (m *Manager) restoreAll(ctx context.Context, snapshots []journal.FileSnapshot) (UndoResult, []journal.FileSnapshot, error) {
	var result UndoResult

	captured := make([]journal.FileSnapshot, 0, len(snapshots))

	for _, snap := range snapshots {
		resolvedPath, followed := m.resolveCurrentPath(snap.FilePath, snap.Crc32c)

		before, err := m.captureCurrent(ctx, resolvedPath)
		if err != nil {
			return UndoResult{}, nil, err
		}

		restore := snapshotRestore{
			path:    resolvedPath,
			existed: true,
			content: snap.Content,
		}

		if err := m.restoreSnapshot(ctx, restore); err != nil {
			return UndoResult{}, nil, err
		}

		captured = append(captured, before)

		result.OriginalPath = snap.FilePath
		result.ResolvedPath = resolvedPath
		result.FollowedMove = followed
	}

	return result, captured, nil
}

// captureCurrent reads path's current on-disk content for re-attachment to
// the opposite stack before restoreSnapshot replaces it. A missing file
// captures as empty content, matching restoreSnapshot's own existed:true
// assumption elsewhere in this file.
func (m *Manager) captureCurrent(ctx context.Context, path string) (journal.FileSnapshot, error) {
	content, err := m.writer.ReadAll(ctx, path)
	if err != nil && !fs.IsNotExist(err) {
		return journal.FileSnapshot{}, fmt.Errorf("capture current state of %q: %w", path, err)
	}

	detect := textutil.DetectEncoding(content)
	text := string(textutil.StripBOM(content, detect.Charset))

	return journal.FileSnapshot{
		FilePath: path,
		Content:  content,
		FileSize: int64(len(content)),
		Crc32c:   textutil.Crc32cOfString(text),
	}, nil
}

// resolveCurrentPath implements smart undo: it first asks whether path
// itself is still live (no rename recorded under it), then falls back to
// scanning the lineage tracker's CRC history for a match.
func (m *Manager) resolveCurrentPath(path string, crc uint32) (string, bool) {
	if len(m.lineage.GetPreviousPaths(path)) == 0 {
		return path, false
	}

	if rec, ok := m.lineage.FindByCrc(crc); ok {
		return rec.CurrentPath, rec.CurrentPath != path
	}

	return path, false
}

// RecordExternalChange appends an EXTERNAL_CHANGE entry outside any open
// transaction, persisting previousContent as its snapshot so the outside
// edit becomes reversible through Undo.
func (m *Manager) RecordExternalChange(ctx context.Context, path string, previousContent []byte, previousCrc, currentCrc uint32, description string) (int64, error) {
	entry := journal.Entry{
		Stack:          journal.StackUndo,
		Type:           journal.EntryExternalChange,
		CreatedAt:      time.Now(),
		Description:    description,
		Status:         journal.StatusCommitted,
		AffectedPath:   path,
		PreviousCrc:    previousCrc,
		HasPreviousCrc: true,
		CurrentCrc:     currentCrc,
		HasCurrentCrc:  true,
	}

	id, _, err := m.store.AppendEntry(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("record external change: %w", err)
	}

	err = m.store.AttachSnapshot(ctx, id, journal.FileSnapshot{
		FilePath: path,
		Content:  previousContent,
		FileSize: int64(len(previousContent)),
		Crc32c:   previousCrc,
	})
	if err != nil {
		return 0, fmt.Errorf("record external change: attach snapshot: %w", err)
	}

	if err := m.store.TruncateRedo(ctx); err != nil {
		return 0, fmt.Errorf("record external change: %w", err)
	}

	return id, nil
}
