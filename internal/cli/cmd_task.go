package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
)

// TaskCmd returns the task command: selects, creates, or resets a task
// context.
func TaskCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("task", flag.ContinueOnError)
	workingDir := flags.String("working-dir", "", "working directory for a newly created task")
	deleteFiles := flags.Bool("delete-files", false, "also remove the task's on-disk state when resetting")

	return &Command{
		Flags: flags,
		Usage: "task <select|create|reset> [id]",
		Short: "Select, create, or reset a task context",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errors.New("action (select|create|reset) is required")
			}

			action := args[0]

			var taskID string
			if len(args) > 1 {
				taskID = args[1]
			}

			switch action {
			case "select", "create", "reset":
			default:
				return errors.New("unknown task action: " + action)
			}

			report := f.Task(ctx, facade.TaskParams{
				Action:           action,
				TaskID:           taskID,
				WorkingDirectory: *workingDir,
				DeleteFiles:      *deleteFiles,
			})

			return emit(o, report)
		},
	}
}
