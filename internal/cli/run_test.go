package cli_test

import (
	"testing"

	"github.com/ntsdev/nts/internal/cli"
)

func TestRun_NoCommandFails(t *testing.T) {
	c := cli.NewCLI(t)

	_, stderr, code := c.Run()
	if code == 0 {
		t.Fatalf("expected non-zero exit code when no command is given")
	}

	cli.AssertContains(t, stderr, "no command provided")
}

func TestRun_UnknownCommandFails(t *testing.T) {
	c := cli.NewCLI(t)

	_, stderr, code := c.Run("frobnicate")
	if code == 0 {
		t.Fatalf("expected non-zero exit code for unknown command")
	}

	cli.AssertContains(t, stderr, "unknown command")
}

func TestRun_HelpFlagPrintsUsage(t *testing.T) {
	c := cli.NewCLI(t)

	out := c.MustRun("--help")

	cli.AssertContains(t, out, "Usage")
	cli.AssertContains(t, out, "shell")
}

func TestRun_TaskFlagSelectsTask(t *testing.T) {
	c := cli.NewCLI(t)

	c.MustRun("task", "create", "side", "--working-dir", c.Dir)
	c.MustRun("task", "select", "default")

	c.WriteFile("a.txt", "hi\n")

	out := c.MustRun("-t", "side", "task", "select", "side")
	cli.AssertContains(t, out, "side")
}
