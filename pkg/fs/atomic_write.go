package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// AtomicWriter implements the "safe swap" algorithm (§4.1 of the editing
// core's design): write a temp file, back up the existing file to
// path+".old", rename the temp file into place, and only then delete the
// backup. If the final rename fails, the backup is restored so path is never
// left unreadable.
//
// Every filesystem step is retried per [withRetry]'s bounded exponential
// backoff (50, 100, 200, 400, 800ms), so a transient access-denied/busy/
// sharing-violation error from the host OS does not immediately fail the
// whole operation.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter backed by fsys. Panics if fsys is
// nil.
func NewAtomicWriter(fsys FS) *AtomicWriter {
	if fsys == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fsys}
}

const defaultFilePerm = 0o644

// Write atomically replaces path's contents with data.
//
// Invariant (testable property 1): after Write returns, either path contains
// data, or it contains whatever it held before the call. Neither path+".tmp"
// nor path+".old" exist once Write returns, except in the pathological case
// where even the restore rename fails (reported as part of the returned
// error).
func (w *AtomicWriter) Write(ctx context.Context, path string, data []byte) error {
	return w.writeFrom(ctx, path, data)
}

// Copy atomically duplicates src's current content into dst using the same
// safe-swap algorithm as Write.
func (w *AtomicWriter) Copy(ctx context.Context, src, dst string) error {
	content, err := w.ReadAll(ctx, src)
	if err != nil {
		return fmt.Errorf("copy: read %q: %w", src, err)
	}

	err = w.writeFrom(ctx, dst, content)
	if err != nil {
		return fmt.Errorf("copy: write %q: %w", dst, err)
	}

	return nil
}

// Move renames src to dst, retrying transient errors.
func (w *AtomicWriter) Move(ctx context.Context, src, dst string) error {
	err := withRetry(ctx, func() error {
		return w.fs.Rename(src, dst)
	})
	if err != nil {
		return fmt.Errorf("move %q -> %q: %w", src, dst, err)
	}

	return nil
}

// Delete removes path, retrying transient errors. Deleting an already-absent
// path is not an error.
func (w *AtomicWriter) Delete(ctx context.Context, path string) error {
	err := withRetry(ctx, func() error {
		removeErr := w.fs.Remove(path)
		if removeErr != nil && os.IsNotExist(removeErr) {
			return nil
		}

		return removeErr
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}

	return nil
}

// ReadAll reads path's entire contents, retrying transient errors.
func (w *AtomicWriter) ReadAll(ctx context.Context, path string) ([]byte, error) {
	var content []byte

	err := withRetry(ctx, func() error {
		var readErr error
		content, readErr = w.fs.ReadFile(path)

		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}

	return content, nil
}

// writeFrom runs the safe-swap algorithm described in §4.1.
func (w *AtomicWriter) writeFrom(ctx context.Context, path string, data []byte) error {
	tmpPath := path + ".tmp"
	oldPath := path + ".old"

	writeErr := withRetry(ctx, func() error {
		return w.writeTempFile(tmpPath, data)
	})
	if writeErr != nil {
		_ = w.fs.Remove(tmpPath)

		return fmt.Errorf("write temp file %q: %w", tmpPath, writeErr)
	}

	hadPrevious, backupErr := w.backupExisting(ctx, path, oldPath)
	if backupErr != nil {
		_ = w.fs.Remove(tmpPath)

		return fmt.Errorf("back up %q: %w", path, backupErr)
	}

	renameErr := withRetry(ctx, func() error {
		return w.fs.Rename(tmpPath, path)
	})
	if renameErr != nil {
		_ = w.fs.Remove(tmpPath)

		return w.restoreAndFail(ctx, path, oldPath, hadPrevious, renameErr)
	}

	if !hadPrevious {
		return nil
	}

	removeErr := withRetry(ctx, func() error {
		err := w.fs.Remove(oldPath)
		if err != nil && os.IsNotExist(err) {
			return nil
		}

		return err
	})
	if removeErr != nil {
		// The new content is already live under path; failing to clean up
		// the backup is not a correctness problem, only a tidiness one, but
		// callers should still be told.
		return fmt.Errorf("write %q: succeeded but failed to remove backup %q: %w", path, oldPath, removeErr)
	}

	return nil
}

// writeTempFile creates tmpPath fresh (clearing any leftover from a prior
// crashed attempt) and writes data to it durably.
func (w *AtomicWriter) writeTempFile(tmpPath string, data []byte) error {
	_ = w.fs.Remove(tmpPath)

	file, err := w.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	_, writeErr := file.Write(data)
	if writeErr != nil {
		_ = file.Close()

		return fmt.Errorf("write: %w", writeErr)
	}

	syncErr := file.Sync()
	if syncErr != nil {
		_ = file.Close()

		return fmt.Errorf("sync: %w", syncErr)
	}

	closeErr := file.Close()
	if closeErr != nil {
		return fmt.Errorf("close: %w", closeErr)
	}

	return nil
}

// backupExisting renames path to oldPath if path currently exists. Returns
// whether a previous file was present.
func (w *AtomicWriter) backupExisting(ctx context.Context, path, oldPath string) (bool, error) {
	exists, err := w.fs.Exists(path)
	if err != nil {
		return false, fmt.Errorf("stat: %w", err)
	}

	if !exists {
		return false, nil
	}

	_ = w.fs.Remove(oldPath)

	renameErr := withRetry(ctx, func() error {
		return w.fs.Rename(path, oldPath)
	})
	if renameErr != nil {
		return false, fmt.Errorf("rename to backup: %w", renameErr)
	}

	return true, nil
}

// restoreAndFail is called when the final tmp->path rename fails. It
// attempts to restore the backup (if one was taken) so path keeps working,
// then returns an error describing the original failure (and the restore
// failure, if any).
func (w *AtomicWriter) restoreAndFail(ctx context.Context, path, oldPath string, hadPrevious bool, cause error) error {
	if !hadPrevious {
		return fmt.Errorf("rename %q into place: %w", path, cause)
	}

	restoreErr := withRetry(ctx, func() error {
		return w.fs.Rename(oldPath, path)
	})
	if restoreErr != nil {
		return errors.Join(
			fmt.Errorf("rename %q into place: %w", path, cause),
			fmt.Errorf("restore backup %q: %w", oldPath, restoreErr),
		)
	}

	return fmt.Errorf("rename %q into place: %w (original content restored)", path, cause)
}
