package fs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by [Locker.ProbeWriteable] and [Locker.Lock] when the
// target is already held by another process.
var ErrLocked = errors.New("locked by another process")

// Locker provides flock(2)-based exclusive locking, used both as the
// writeability probe of §4.1 and to keep a persistent task's Journal Store
// exclusive to one process (§5, "Shared resources").
//
// It uses golang.org/x/sys/unix rather than the syscall package directly:
// the LOCK_* constants in syscall are effectively frozen, and x/sys is the
// maintained home for new platform support.
type Locker struct {
	fs FS
}

// NewLocker creates a Locker backed by fsys.
func NewLocker(fsys FS) *Locker {
	return &Locker{fs: fsys}
}

// Lock represents a held exclusive lock. Call Close to release it.
type Lock struct {
	file File
}

// Close releases the lock and closes the underlying file descriptor. Close
// is idempotent.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}

	fd := int(l.file.Fd())
	unlockErr := unix.Flock(fd, unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close lock fd: %w", closeErr)
	}

	return nil
}

// Lock acquires a non-blocking exclusive lock on path, creating the file (and
// its parent directory) if necessary. Returns [ErrLocked] if another process
// already holds the lock.
func (lk *Locker) Lock(path string) (*Lock, error) {
	file, err := lk.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}

		return nil, fmt.Errorf("flock %q: %w", path, err)
	}

	return &Lock{file: file}, nil
}

// ProbeWriteable implements the §4.1 "writeability probe": open path for
// writing, attempt a non-blocking exclusive lock, and report [ErrLocked] if
// it is held by another process. A file that vanishes between the existence
// check and the open is treated as not-locked, matching the spec.
func (lk *Locker) ProbeWriteable(path string) error {
	exists, err := lk.fs.Exists(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	if !exists {
		return nil
	}

	lock, err := lk.Lock(path)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return ErrLocked
		}

		// The file vanished between Exists and OpenFile, or some other
		// transient condition - treat as writeable per spec.
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return err
	}

	return lock.Close()
}
