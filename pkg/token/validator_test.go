package token_test

import (
	"testing"

	"github.com/ntsdev/nts/pkg/token"
)

type fakeLineage struct {
	previous map[string][]string
}

func (f fakeLineage) GetPreviousPaths(path string) []string {
	return f.previous[path]
}

func decodeOrFatal(t *testing.T, s string) token.Decoded {
	t.Helper()

	d, err := token.Decode(s)
	if err != nil {
		t.Fatalf("Decode(%q): %v", s, err)
	}

	return d
}

func TestValidator_ValidToken(t *testing.T) {
	t.Parallel()

	tok, _ := token.New("/repo/a.go", 1, 3, 111, 10)
	d := decodeOrFatal(t, token.Serialize(tok))

	v := token.NewValidator(fakeLineage{})
	result := v.Validate(d, "/repo/a.go", token.FileState{RangeCrc32c: 111, LineCount: 10})

	if result.Status != token.StatusValid {
		t.Fatalf("Status = %v, want VALID", result.Status)
	}
}

func TestValidator_CrcMismatch(t *testing.T) {
	t.Parallel()

	tok, _ := token.New("/repo/a.go", 1, 3, 111, 10)
	d := decodeOrFatal(t, token.Serialize(tok))

	v := token.NewValidator(fakeLineage{})
	result := v.Validate(d, "/repo/a.go", token.FileState{RangeCrc32c: 222, LineCount: 10})

	if result.Status != token.StatusCrcMismatch {
		t.Fatalf("Status = %v, want CRC_MISMATCH", result.Status)
	}

	if result.Suggestion == "" {
		t.Fatal("expected a non-empty suggestion")
	}
}

func TestValidator_LineCountMismatch(t *testing.T) {
	t.Parallel()

	tok, _ := token.New("/repo/a.go", 1, 3, 111, 10)
	d := decodeOrFatal(t, token.Serialize(tok))

	v := token.NewValidator(fakeLineage{})
	result := v.Validate(d, "/repo/a.go", token.FileState{RangeCrc32c: 111, LineCount: 11})

	if result.Status != token.StatusLineCountMismatch {
		t.Fatalf("Status = %v, want LINE_COUNT_MISMATCH", result.Status)
	}
}

func TestValidator_PathMismatchIsNotFound(t *testing.T) {
	t.Parallel()

	tok, _ := token.New("/repo/a.go", 1, 3, 111, 10)
	d := decodeOrFatal(t, token.Serialize(tok))

	v := token.NewValidator(fakeLineage{})
	result := v.Validate(d, "/repo/other.go", token.FileState{RangeCrc32c: 111, LineCount: 10})

	if result.Status != token.StatusNotFound {
		t.Fatalf("Status = %v, want NOT_FOUND", result.Status)
	}
}

func TestValidator_PathAliasingViaLineage(t *testing.T) {
	t.Parallel()

	tok, _ := token.New("/repo/old.go", 1, 3, 111, 10)
	d := decodeOrFatal(t, token.Serialize(tok))

	lineage := fakeLineage{previous: map[string][]string{
		"/repo/new.go": {"/repo/old.go"},
	}}

	v := token.NewValidator(lineage)
	result := v.Validate(d, "/repo/new.go", token.FileState{RangeCrc32c: 111, LineCount: 10})

	if result.Status != token.StatusValid {
		t.Fatalf("Status = %v, want VALID via path aliasing", result.Status)
	}
}

func TestValidator_PathAliasingViaInTransactionAccess(t *testing.T) {
	t.Parallel()

	tok, _ := token.New("/repo/old.go", 1, 3, 111, 10)
	d := decodeOrFatal(t, token.Serialize(tok))

	v := token.NewValidator(fakeLineage{})
	v.MarkAccessed("/repo/new.go")

	result := v.Validate(d, "/repo/new.go", token.FileState{RangeCrc32c: 111, LineCount: 10})
	if result.Status != token.StatusValid {
		t.Fatalf("Status = %v, want VALID via in-transaction bypass", result.Status)
	}

	v.ResetAccessed()

	result = v.Validate(d, "/repo/new.go", token.FileState{RangeCrc32c: 111, LineCount: 10})
	if result.Status != token.StatusNotFound {
		t.Fatalf("after ResetAccessed, Status = %v, want NOT_FOUND", result.Status)
	}
}

func TestValidator_MalformedTokenIsNotFound(t *testing.T) {
	t.Parallel()

	if _, err := token.Decode("garbage"); err == nil {
		t.Fatal("expected Decode to reject a malformed token")
	}
}
