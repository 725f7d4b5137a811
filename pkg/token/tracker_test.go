package token_test

import (
	"testing"

	"github.com/ntsdev/nts/pkg/token"
)

func crcStub(start, end int) (uint32, int) {
	return uint32(start*1000 + end), end
}

func TestTracker_IssueMergesOverlappingTokens(t *testing.T) {
	t.Parallel()

	tr := token.NewTracker()

	first, _ := token.New("/repo/a.go", 1, 5, 10, 20)
	tr.Issue(first, crcStub)

	second, _ := token.New("/repo/a.go", 4, 8, 10, 20)
	merged := tr.Issue(second, crcStub)

	if merged.StartLine != 1 || merged.EndLine != 8 {
		t.Fatalf("merged range = [%d,%d], want [1,8]", merged.StartLine, merged.EndLine)
	}

	if len(tr.Tokens("/repo/a.go")) != 1 {
		t.Fatalf("expected overlapping tokens to collapse into one, got %d", len(tr.Tokens("/repo/a.go")))
	}
}

func TestTracker_IssueMergesAdjacentTokens(t *testing.T) {
	t.Parallel()

	tr := token.NewTracker()

	first, _ := token.New("/repo/a.go", 1, 5, 10, 20)
	tr.Issue(first, crcStub)

	second, _ := token.New("/repo/a.go", 6, 10, 10, 20)
	merged := tr.Issue(second, crcStub)

	if merged.StartLine != 1 || merged.EndLine != 10 {
		t.Fatalf("merged range = [%d,%d], want [1,10]", merged.StartLine, merged.EndLine)
	}
}

func TestTracker_IssueKeepsDisjointTokensSeparate(t *testing.T) {
	t.Parallel()

	tr := token.NewTracker()

	first, _ := token.New("/repo/a.go", 1, 5, 10, 20)
	tr.Issue(first, crcStub)

	second, _ := token.New("/repo/a.go", 50, 55, 10, 20)
	tr.Issue(second, crcStub)

	if len(tr.Tokens("/repo/a.go")) != 2 {
		t.Fatalf("expected disjoint tokens to remain separate, got %d", len(tr.Tokens("/repo/a.go")))
	}
}

func TestTracker_ApplyEditShiftsLaterTokens(t *testing.T) {
	t.Parallel()

	tr := token.NewTracker()

	before, _ := token.New("/repo/a.go", 20, 25, 10, 30)
	tr.Issue(before, crcStub)

	tr.ApplyEdit("/repo/a.go", 1, 1, 5, func(start, end int) uint32 {
		return uint32(start + end)
	}, 35)

	got := tr.Tokens("/repo/a.go")
	if len(got) != 1 {
		t.Fatalf("expected 1 token, got %d", len(got))
	}

	if got[0].StartLine != 25 || got[0].EndLine != 30 {
		t.Fatalf("shifted range = [%d,%d], want [25,30]", got[0].StartLine, got[0].EndLine)
	}

	if got[0].LineCount != 35 {
		t.Fatalf("LineCount = %d, want 35", got[0].LineCount)
	}
}

func TestTracker_ApplyEditExpandsContainingToken(t *testing.T) {
	t.Parallel()

	tr := token.NewTracker()

	containing, _ := token.New("/repo/a.go", 1, 10, 10, 30)
	tr.Issue(containing, crcStub)

	tr.ApplyEdit("/repo/a.go", 3, 5, 4, func(start, end int) uint32 {
		return 999
	}, 34)

	got := tr.Tokens("/repo/a.go")[0]
	if got.StartLine != 1 || got.EndLine != 14 {
		t.Fatalf("expanded range = [%d,%d], want [1,14]", got.StartLine, got.EndLine)
	}
}

func TestTracker_RenameMovesTokens(t *testing.T) {
	t.Parallel()

	tr := token.NewTracker()

	tok, _ := token.New("/repo/old.go", 1, 5, 10, 20)
	tr.Issue(tok, crcStub)

	tr.Rename("/repo/old.go", "/repo/new.go")

	if len(tr.Tokens("/repo/old.go")) != 0 {
		t.Fatal("expected no tokens left under the old path")
	}

	moved := tr.Tokens("/repo/new.go")
	if len(moved) != 1 || moved[0].AbsolutePath != "/repo/new.go" {
		t.Fatalf("expected token moved to new path, got %+v", moved)
	}
}
