package cli_test

import (
	"testing"

	"github.com/ntsdev/nts/internal/cli"
)

func TestUndoRedo_RoundTrip(t *testing.T) {
	c := cli.NewCLI(t)
	c.WriteFile("a.txt", "one\n")

	readOut := c.MustRun("read", "a.txt")
	tok := extractToken(t, readOut)
	c.MustRun("edit", "a.txt", "--token", tok, "--content", "ONE\n")

	if got := c.ReadFile("a.txt"); got != "ONE\n" {
		t.Fatalf("after edit, got %q", got)
	}

	c.MustRun("undo")

	if got := c.ReadFile("a.txt"); got != "one\n" {
		t.Fatalf("after undo, got %q", got)
	}

	c.MustRun("redo")

	if got := c.ReadFile("a.txt"); got != "ONE\n" {
		t.Fatalf("after redo, got %q", got)
	}
}

func TestUndo_NothingToUndoFails(t *testing.T) {
	c := cli.NewCLI(t)

	_, stderr, code := c.Run("undo")
	if code == 0 {
		t.Fatalf("expected undo with nothing on the stack to fail, stderr=%s", stderr)
	}
}
