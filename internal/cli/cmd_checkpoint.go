package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
)

// CheckpointCmd returns the checkpoint command: creates a named
// checkpoint, or rolls back every mutation since one.
func CheckpointCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	rollback := flags.Bool("rollback", false, "roll back to the named checkpoint instead of creating it")

	return &Command{
		Flags: flags,
		Usage: "checkpoint <name> [--rollback]",
		Short: "Create or roll back to a named checkpoint",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errors.New("checkpoint name is required")
			}

			action := "create"
			if *rollback {
				action = "rollback"
			}

			report := f.Checkpoint(ctx, facade.CheckpointParams{Name: args[0], Action: action})

			return emit(o, report)
		},
	}
}
