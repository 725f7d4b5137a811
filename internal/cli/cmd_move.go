package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
)

// MoveCmd returns the move command: renames a file under a journaled,
// fully reversible transaction.
func MoveCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("move", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "move <from> <to>",
		Short: "Rename or move a file",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errors.New("both <from> and <to> are required")
			}

			report := f.Move(ctx, facade.MoveParams{From: args[0], To: args[1]})

			return emit(o, report)
		},
	}
}

// DeleteCmd returns the delete command: removes a file under a journaled
// transaction, undoable through nts undo.
func DeleteCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("delete", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "delete <path>",
		Short: "Delete a file",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errPathRequired
			}

			report := f.Delete(ctx, facade.DeleteParams{Path: args[0]})

			return emit(o, report)
		},
	}
}
