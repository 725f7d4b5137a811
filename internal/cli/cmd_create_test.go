package cli_test

import (
	"testing"

	"github.com/ntsdev/nts/internal/cli"
)

func TestCreate_WritesNewFile(t *testing.T) {
	c := cli.NewCLI(t)

	c.MustRun("create", "new.txt", "--content", "hello\n")

	got := c.ReadFile("new.txt")
	if got != "hello\n" {
		t.Fatalf("got %q", got)
	}
}

func TestCreate_RejectsExistingPath(t *testing.T) {
	c := cli.NewCLI(t)
	c.WriteFile("exists.txt", "already here\n")

	stderr := c.MustFail("create", "exists.txt", "--content", "x\n")

	if stderr == "" {
		t.Fatalf("expected an error creating an existing file")
	}
}

func TestCreate_ContentFromStdin(t *testing.T) {
	c := cli.NewCLI(t)

	_, stderr, code := c.RunWithInput("from stdin\n", "create", "new.txt")
	if code != 0 {
		t.Fatalf("create via stdin failed: %s", stderr)
	}

	got := c.ReadFile("new.txt")
	if got != "from stdin\n" {
		t.Fatalf("got %q", got)
	}
}
