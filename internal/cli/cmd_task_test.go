package cli_test

import (
	"testing"

	"github.com/ntsdev/nts/internal/cli"
)

func TestTask_CreateSelectAndReset(t *testing.T) {
	c := cli.NewCLI(t)

	out := c.MustRun("task", "create", "t1", "--working-dir", c.Dir)
	cli.AssertContains(t, out, "t1")

	c.WriteFile("a.txt", "hello\n")
	c.MustRun("read", "a.txt")

	out = c.MustRun("task", "select", "t1")
	cli.AssertContains(t, out, "t1")

	out = c.MustRun("task", "reset", "t1")
	cli.AssertContains(t, out, "t1")
}

func TestTask_UnknownActionFails(t *testing.T) {
	c := cli.NewCLI(t)

	stderr := c.MustFail("task", "frobnicate")

	cli.AssertContains(t, stderr, "unknown task action")
}

func TestTask_MissingActionFails(t *testing.T) {
	c := cli.NewCLI(t)

	stderr := c.MustFail("task")

	cli.AssertContains(t, stderr, "action")
}
