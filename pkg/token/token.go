// Package token implements Line Access Tokens, the range-capability
// mechanism that gates every mutating tool call: a token names the file,
// the line range it was issued over, and a checksum of that range's
// content, and a mutation is only admitted once its token decodes and still
// matches the file's current state.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const tokenPrefix = "LAT"

// Token is the in-memory, already-validated form of a Line Access Token.
type Token struct {
	AbsolutePath string
	StartLine    int
	EndLine      int
	RangeCrc32c  uint32
	LineCount    int
}

// Status is the outcome of validating a token against current file state.
type Status string

const (
	StatusValid             Status = "VALID"
	StatusCrcMismatch       Status = "CRC_MISMATCH"
	StatusLineCountMismatch Status = "LINE_COUNT_MISMATCH"
	StatusNotFound          Status = "NOT_FOUND"
)

// ValidationResult reports a token's status and, on failure, a
// machine-usable suggestion describing what the caller should do next.
type ValidationResult struct {
	Status     Status
	Suggestion string
}

var (
	// ErrMalformed is returned by Decode when a string is not a well-formed
	// token: wrong prefix, wrong field count, or an unparsable field.
	ErrMalformed = errors.New("malformed line access token")
)

// New constructs a Token over lines [start..end] of path, given the range's
// current CRC32C and the file's current line count. Invariants: start >= 1,
// end >= start, lineCount >= 0.
func New(absolutePath string, start, end int, rangeCrc uint32, lineCount int) (Token, error) {
	if start < 1 {
		return Token{}, fmt.Errorf("%w: startLine must be >= 1, got %d", ErrMalformed, start)
	}

	if end < start {
		return Token{}, fmt.Errorf("%w: endLine (%d) must be >= startLine (%d)", ErrMalformed, end, start)
	}

	if lineCount < 0 {
		return Token{}, fmt.Errorf("%w: lineCount must be >= 0, got %d", ErrMalformed, lineCount)
	}

	return Token{
		AbsolutePath: absolutePath,
		StartLine:    start,
		EndLine:      end,
		RangeCrc32c:  rangeCrc,
		LineCount:    lineCount,
	}, nil
}

// Overlaps reports whether t and other's ranges share at least one line.
func (t Token) Overlaps(other Token) bool {
	return t.StartLine <= other.EndLine && other.StartLine <= t.EndLine
}

// IsAdjacentTo reports whether t and other's ranges are consecutive with no
// gap (e.g. [1,5] and [6,10]).
func (t Token) IsAdjacentTo(other Token) bool {
	return t.EndLine+1 == other.StartLine || other.EndLine+1 == t.StartLine
}

// Merge combines t and other into a single token spanning their union.
// recomputeCrc must return the CRC32C of the merged range; callers own
// recomputation since the token package has no file access of its own.
func (t Token) Merge(other Token, mergedCrc uint32, lineCount int) Token {
	start := t.StartLine
	if other.StartLine < start {
		start = other.StartLine
	}

	end := t.EndLine
	if other.EndLine > end {
		end = other.EndLine
	}

	return Token{
		AbsolutePath: t.AbsolutePath,
		StartLine:    start,
		EndLine:      end,
		RangeCrc32c:  mergedCrc,
		LineCount:    lineCount,
	}
}

// Shift translates a token by delta lines (used for tokens strictly after
// an edit that changed the file's line count) and attaches the freshly
// computed range CRC and file line count.
func (t Token) Shift(delta int, newRangeCrc uint32, newLineCount int) Token {
	t.StartLine += delta
	t.EndLine += delta
	t.RangeCrc32c = newRangeCrc
	t.LineCount = newLineCount

	return t
}

// Expand adjusts a token whose range contains an edit by lineDelta lines on
// its end boundary, and attaches the freshly computed range CRC and file
// line count.
func (t Token) Expand(lineDelta int, newRangeCrc uint32, newLineCount int) Token {
	t.EndLine += lineDelta
	t.RangeCrc32c = newRangeCrc
	t.LineCount = newLineCount

	return t
}

// WithRangeCrc returns a copy of t with its range CRC replaced, used for
// tokens overlapping but not containing an edit.
func (t Token) WithRangeCrc(newRangeCrc uint32) Token {
	t.RangeCrc32c = newRangeCrc

	return t
}

// WithLineCount returns a copy of t with its file line count replaced,
// used for tokens unaffected by an edit elsewhere in the same file.
func (t Token) WithLineCount(newLineCount int) Token {
	t.LineCount = newLineCount

	return t
}

// PathHash8 returns the first 8 uppercase hex characters of
// SHA-256(normalized-absolute-path).
func PathHash8(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	sum := sha256.Sum256([]byte(normalized))

	return strings.ToUpper(hex.EncodeToString(sum[:4]))
}

// Serialize renders t as LAT:{pathHash8}:{startLine}:{endLine}:{rangeCrc32cHex}:{lineCount}.
func Serialize(t Token) string {
	return fmt.Sprintf("%s:%s:%d:%d:%08X:%d",
		tokenPrefix,
		PathHash8(t.AbsolutePath),
		t.StartLine,
		t.EndLine,
		t.RangeCrc32c,
		t.LineCount,
	)
}

// Decoded is a token string's parsed fields, prior to path-hash or CRC
// validation against live file state.
type Decoded struct {
	PathHash8 string
	StartLine int
	EndLine   int
	RangeCrc  uint32
	LineCount int
}

// Decode parses s into its six colon-separated fields without validating
// PathHash8 against any particular path - that comparison is Validator's
// job, since it depends on the Lineage Tracker's path-aliasing rules.
func Decode(s string) (Decoded, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 6 {
		return Decoded{}, fmt.Errorf("%w: expected 6 fields, got %d", ErrMalformed, len(fields))
	}

	if fields[0] != tokenPrefix {
		return Decoded{}, fmt.Errorf("%w: expected prefix %q, got %q", ErrMalformed, tokenPrefix, fields[0])
	}

	start, err := strconv.Atoi(fields[2])
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: startLine: %v", ErrMalformed, err)
	}

	end, err := strconv.Atoi(fields[3])
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: endLine: %v", ErrMalformed, err)
	}

	crc, err := strconv.ParseUint(fields[4], 16, 32)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: rangeCrc32c: %v", ErrMalformed, err)
	}

	count, err := strconv.Atoi(fields[5])
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: lineCount: %v", ErrMalformed, err)
	}

	return Decoded{
		PathHash8: fields[1],
		StartLine: start,
		EndLine:   end,
		RangeCrc:  uint32(crc),
		LineCount: count,
	}, nil
}
