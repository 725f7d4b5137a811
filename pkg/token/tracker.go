package token

import "sync"

// Tracker holds the live set of outstanding tokens per file and implements
// eager merge-on-overlap issuance and the shift/expand/withRangeCrc/
// withLineCount mutation rules of §4.6. It does not itself decode or
// validate serialized token strings - that is Validator's job - it manages
// the Token values a caller has already issued.
type Tracker struct {
	mu    sync.Mutex
	byPath map[string][]Token
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byPath: make(map[string][]Token)}
}

// Issue records a newly issued token for its file, merging it with any
// existing token it overlaps or is adjacent to. recomputeCrc is called with
// the union's bounds when a merge occurs, and must return the CRC32C of
// that merged range (the tracker has no file access of its own).
func (tr *Tracker) Issue(t Token, recomputeCrc func(start, end int) (crc uint32, lineCount int)) Token {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	existing := tr.byPath[t.AbsolutePath]
	merged := t
	kept := existing[:0:0]

	for _, other := range existing {
		if merged.Overlaps(other) || merged.IsAdjacentTo(other) {
			crc, lineCount := recomputeCrc(minInt(merged.StartLine, other.StartLine), maxInt(merged.EndLine, other.EndLine))
			merged = merged.Merge(other, crc, lineCount)

			continue
		}

		kept = append(kept, other)
	}

	kept = append(kept, merged)
	tr.byPath[t.AbsolutePath] = kept

	return merged
}

// Tokens returns a copy of the outstanding tokens for path.
func (tr *Tracker) Tokens(path string) []Token {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	existing := tr.byPath[path]
	out := make([]Token, len(existing))
	copy(out, existing)

	return out
}

// ApplyEdit updates every outstanding token for path after a mutation whose
// edited range was [editStart..editEnd] and which changed the file's total
// line count by lineDelta. Tokens strictly after the edit are shifted by
// lineDelta; the token(s) whose range contains the edit are expanded by
// lineDelta; tokens overlapping but not containing the edit get a fresh
// range CRC; unaffected tokens get a fresh line count only.
func (tr *Tracker) ApplyEdit(path string, editStart, editEnd, lineDelta int, recomputeCrc func(start, end int) uint32, newLineCount int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	existing := tr.byPath[path]
	updated := make([]Token, len(existing))

	edit := Token{StartLine: editStart, EndLine: editEnd}

	for i, t := range existing {
		switch {
		case t.StartLine > editEnd:
			updated[i] = t.Shift(lineDelta, recomputeCrc(t.StartLine+lineDelta, t.EndLine+lineDelta), newLineCount)
		case t.StartLine <= editStart && t.EndLine >= editEnd:
			updated[i] = t.Expand(lineDelta, recomputeCrc(t.StartLine, t.EndLine+lineDelta), newLineCount)
		case t.Overlaps(edit):
			updated[i] = t.WithRangeCrc(recomputeCrc(t.StartLine, t.EndLine)).WithLineCount(newLineCount)
		default:
			updated[i] = t.WithLineCount(newLineCount)
		}
	}

	tr.byPath[path] = updated
}

// Rename moves every outstanding token for oldPath to newPath.
func (tr *Tracker) Rename(oldPath, newPath string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	existing, ok := tr.byPath[oldPath]
	if !ok {
		return
	}

	moved := make([]Token, len(existing))
	for i, t := range existing {
		t.AbsolutePath = newPath
		moved[i] = t
	}

	delete(tr.byPath, oldPath)
	tr.byPath[newPath] = moved
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}
