package token

// LineageSource is the subset of the lineage Tracker the Validator needs:
// the list of paths a file held before its current one, used for the
// path-aliasing bypass of §4.6.
type LineageSource interface {
	GetPreviousPaths(path string) []string
}

// FileState is the current, authoritative state of a file that a decoded
// token is checked against.
type FileState struct {
	RangeCrc32c uint32
	LineCount   int
}

// Validator decodes and validates Line Access Tokens against a Lineage
// Tracker (for path aliasing) and a per-transaction set of paths accessed
// so far (the in-transaction path-hash bypass).
type Validator struct {
	lineage  LineageSource
	accessed map[string]bool
}

// NewValidator creates a Validator backed by lineage. accessed may be nil;
// Validate treats a nil map as empty.
func NewValidator(lineage LineageSource) *Validator {
	return &Validator{lineage: lineage, accessed: make(map[string]bool)}
}

// MarkAccessed records that path has been touched in the current
// transaction, enabling the in-transaction path-hash bypass for it.
func (v *Validator) MarkAccessed(path string) {
	v.accessed[path] = true
}

// ResetAccessed clears the in-transaction accessed set, called when a
// transaction commits or rolls back.
func (v *Validator) ResetAccessed() {
	v.accessed = make(map[string]bool)
}

// Validate checks an already-decoded token against expectedPath and state,
// and returns a VALID/CRC_MISMATCH/LINE_COUNT_MISMATCH/NOT_FOUND verdict.
// Callers decode the token string themselves (via Decode) before calling
// Validate, so that a caller tracking a file's live tokens can resolve
// parsed's range to its current, possibly auto-shifted position first -
// state must describe the file at that same, resolved range for the CRC
// and line-count checks below to mean anything.
//
// A token's pathHash8 must match expectedPath's hash, unless expectedPath
// is recognized as one of the file's previous paths (it was renamed into
// expectedPath) or expectedPath has already been accessed in the current
// transaction - either condition is "path aliasing" and bypasses the hash
// check, since the token was legitimately issued under a different name
// for what is, by lineage, the same file.
func (v *Validator) Validate(parsed Decoded, expectedPath string, state FileState) ValidationResult {
	if !v.pathMatches(parsed.PathHash8, expectedPath) {
		return ValidationResult{
			Status:     StatusNotFound,
			Suggestion: "token path does not match the target file; re-read the file to obtain a fresh token",
		}
	}

	if parsed.RangeCrc != state.RangeCrc32c {
		return ValidationResult{
			Status:     StatusCrcMismatch,
			Suggestion: "the token's range has changed since it was issued; re-read the affected lines to obtain a fresh token",
		}
	}

	if parsed.LineCount != state.LineCount {
		return ValidationResult{
			Status:     StatusLineCountMismatch,
			Suggestion: "the file's line count has changed since the token was issued; re-read the file to obtain a fresh token",
		}
	}

	return ValidationResult{Status: StatusValid}
}

// pathMatches applies the direct-hash check first, then the two aliasing
// bypasses described in Validate's doc comment.
func (v *Validator) pathMatches(pathHash8, expectedPath string) bool {
	if pathHash8 == PathHash8(expectedPath) {
		return true
	}

	if v.accessed[expectedPath] {
		return true
	}

	if v.lineage == nil {
		return false
	}

	for _, previous := range v.lineage.GetPreviousPaths(expectedPath) {
		if pathHash8 == PathHash8(previous) {
			return true
		}
	}

	return false
}
