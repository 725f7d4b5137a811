package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
)

// UndoCmd returns the undo command: reverses the top of the current
// task's undo stack.
func UndoCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("undo", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "undo",
		Short: "Undo the last mutation",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return emit(o, f.Undo(ctx, ""))
		},
	}
}

// RedoCmd returns the redo command: re-applies the top of the current
// task's redo stack.
func RedoCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("redo", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "redo",
		Short: "Redo the last undone mutation",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return emit(o, f.Redo(ctx, ""))
		},
	}
}
