// Package extchange implements the External Change Tracker: per-task
// snapshots of file content as last observed by this process, used to
// detect when a file has been modified outside of a tracked transaction
// (by another process, another agent, or a human editor).
package extchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/ntsdev/nts/pkg/textutil"
)

// Snapshot is the in-memory record of a file's last-observed state.
type Snapshot struct {
	AbsolutePath string
	Content      string
	Crc32c       uint32
	Charset      textutil.Charset
	LineCount    int
	Timestamp    time.Time
}

// Verdict is the outcome of checking a file against its last snapshot.
type Verdict string

const (
	VerdictNoChange Verdict = "noChange"
	VerdictDetected Verdict = "detected"
)

// CheckResult reports whether an external change was detected and, if so,
// a human-readable description plus the previous snapshot for the caller
// to act on (typically: record an EXTERNAL_CHANGE journal entry).
type CheckResult struct {
	Verdict     Verdict
	Description string
	Previous    Snapshot
}

// Tracker is the per-task map absolutePath -> Snapshot.
type Tracker struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
	now       func() time.Time
}

// New creates an empty Tracker. now defaults to time.Now; tests may
// override it for deterministic timestamps.
func New(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}

	return &Tracker{snapshots: make(map[string]Snapshot), now: now}
}

// RegisterSnapshot records content as the last-observed state of path.
// Callers invoke this after every successful read.
func (t *Tracker) RegisterSnapshot(path, content string, charset textutil.Charset, lineCount int) {
	snap := Snapshot{
		AbsolutePath: path,
		Content:      content,
		Crc32c:       textutil.Crc32cOfString(content),
		Charset:      charset,
		LineCount:    lineCount,
		Timestamp:    t.now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshots[path] = snap
}

// CheckForExternalChange compares path's stored snapshot against the
// currently observed CRC. Absent or equal snapshots yield VerdictNoChange;
// a differing CRC yields VerdictDetected with a human-readable description
// and the previous snapshot.
func (t *Tracker) CheckForExternalChange(path string, currentCrc uint32, currentContent string, charset textutil.Charset, lineCount int) CheckResult {
	t.mu.Lock()
	previous, ok := t.snapshots[path]
	t.mu.Unlock()

	if !ok {
		return CheckResult{Verdict: VerdictNoChange}
	}

	if previous.Crc32c == currentCrc {
		return CheckResult{Verdict: VerdictNoChange}
	}

	description := fmt.Sprintf(
		"file changed outside this task: crc32c %08X -> %08X, lines %d -> %d",
		previous.Crc32c, currentCrc, previous.LineCount, lineCount,
	)

	return CheckResult{
		Verdict:     VerdictDetected,
		Description: description,
		Previous:    previous,
	}
}

// Forget removes path's snapshot, used after a rename or delete makes the
// stored state meaningless.
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.snapshots, path)
}
