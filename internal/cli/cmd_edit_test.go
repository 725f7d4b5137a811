package cli_test

import (
	"strings"
	"testing"

	"github.com/ntsdev/nts/internal/cli"
)

func extractToken(t *testing.T, content string) string {
	t.Helper()

	idx := strings.Index(content, "token: ")
	if idx == -1 {
		t.Fatalf("no token in output: %q", content)
	}

	rest := content[idx+len("token: "):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[:nl]
	}

	return strings.TrimSpace(rest)
}

func TestEdit_ReplacesTokenGatedRange(t *testing.T) {
	c := cli.NewCLI(t)
	c.WriteFile("a.txt", "one\ntwo\nthree\n")

	readOut := c.MustRun("read", "a.txt", "--start-line", "1", "--end-line", "2")
	tok := extractToken(t, readOut)

	c.MustRun("edit", "a.txt", "--token", tok, "--content", "ONE\nTWO\n")

	got := c.ReadFile("a.txt")
	if got != "ONE\nTWO\nthree\n" {
		t.Fatalf("got %q", got)
	}
}

func TestEdit_ContentFromStdin(t *testing.T) {
	c := cli.NewCLI(t)
	c.WriteFile("a.txt", "one\ntwo\nthree\n")

	readOut := c.MustRun("read", "a.txt")
	tok := extractToken(t, readOut)

	_, stderr, code := c.RunWithInput("ONE\nTWO\nTHREE\n", "edit", "a.txt", "--token", tok)
	if code != 0 {
		t.Fatalf("edit via stdin failed: %s", stderr)
	}

	got := c.ReadFile("a.txt")
	if got != "ONE\nTWO\nTHREE\n" {
		t.Fatalf("got %q", got)
	}
}

func TestEdit_MissingTokenFails(t *testing.T) {
	c := cli.NewCLI(t)
	c.WriteFile("a.txt", "one\n")

	stderr := c.MustFail("edit", "a.txt", "--content", "x\n")

	cli.AssertContains(t, stderr, "--token is required")
}

func TestEdit_StaleTokenRejected(t *testing.T) {
	c := cli.NewCLI(t)
	c.WriteFile("a.txt", "one\ntwo\nthree\n")

	readOut := c.MustRun("read", "a.txt")
	tok := extractToken(t, readOut)

	// External edit bypassing nts invalidates the token's range CRC.
	c.WriteFile("a.txt", "one\nTWO\nthree\n")

	stderr := c.MustFail("edit", "a.txt", "--token", tok, "--content", "x\n")

	if stderr == "" {
		t.Fatalf("expected an error for a stale token")
	}
}
