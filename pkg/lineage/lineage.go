// Package lineage tracks file identity across rename chains, so a Line
// Access Token minted before a move remains redeemable afterward and smart
// undo can follow a file that moved mid-transaction.
package lineage

import (
	"fmt"
	"sync"

	"github.com/ntsdev/nts/pkg/textutil"
)

// Record is one tracked identity: its current path, every path it has ever
// held, and the history of content checksums observed under that identity.
type Record struct {
	Identity    string
	CurrentPath string
	RenameChain []string
	CrcHistory  []uint32
}

// Tracker is the File Lineage Tracker of §4.4. It is safe for concurrent
// use; every exported method takes the tracker's mutex, matching the
// "Transaction Manager serializes mutations via a mutex" pattern the other
// per-task trackers follow (§5).
type Tracker struct {
	mu sync.Mutex

	byPath     map[string]*Record
	byIdentity map[string]*Record
	nextSeq    int
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		byPath:     make(map[string]*Record),
		byIdentity: make(map[string]*Record),
	}
}

// RegisterFile returns path's identity, minting a fresh one if path has
// never been seen before.
func (t *Tracker) RegisterFile(path string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.byPath[path]; ok {
		return rec.Identity
	}

	t.nextSeq++
	rec := &Record{
		Identity:    fmt.Sprintf("file-%d", t.nextSeq),
		CurrentPath: path,
		RenameChain: []string{path},
	}

	t.byPath[path] = rec
	t.byIdentity[rec.Identity] = rec

	return rec.Identity
}

// RecordMove transfers oldPath's identity to newPath, appending newPath to
// the rename chain. If oldPath was never registered, a fresh identity is
// minted for newPath directly (the file arrived from outside this
// tracker's view, e.g. created by an earlier task run).
func (t *Tracker) RecordMove(oldPath, newPath string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byPath[oldPath]
	if !ok {
		t.nextSeq++
		rec = &Record{
			Identity:    fmt.Sprintf("file-%d", t.nextSeq),
			RenameChain: []string{oldPath},
		}
		t.byIdentity[rec.Identity] = rec
	}

	rec.CurrentPath = newPath
	rec.RenameChain = append(rec.RenameChain, newPath)
	t.byPath[newPath] = rec

	return rec.Identity
}

// UpdateCrc recomputes content's checksum and appends it to path's identity
// history.
func (t *Tracker) UpdateCrc(path string, content string) uint32 {
	crc := textutil.Crc32cOfString(content)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byPath[path]
	if !ok {
		return crc
	}

	rec.CrcHistory = append(rec.CrcHistory, crc)

	return crc
}

// GetPreviousPaths returns every path ever held by path's identity, oldest
// first, excluding the current path. Used by the token decoder's
// path-aliasing bypass: a token minted under an old path is still
// redeemable if the file has since been renamed.
func (t *Tracker) GetPreviousPaths(path string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byPath[path]
	if !ok {
		return nil
	}

	previous := make([]string, 0, len(rec.RenameChain))

	for _, p := range rec.RenameChain {
		if p != rec.CurrentPath {
			previous = append(previous, p)
		}
	}

	return previous
}

// FindByCrc returns a record whose CRC history contains crc. When several
// records match, which one is returned is not defined. Used by smart undo to re-locate a file that
// moved mid-transaction: its path may no longer be the one a buffered
// snapshot remembers, but its last known content checksum still matches.
func (t *Tracker) FindByCrc(crc uint32) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rec := range t.byIdentity {
		for _, h := range rec.CrcHistory {
			if h == crc {
				return *rec, true
			}
		}
	}

	return Record{}, false
}
