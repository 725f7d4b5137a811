package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
)

// CreateCmd returns the create command: writes a brand-new file under a
// journaled transaction.
func CreateCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("create", flag.ContinueOnError)
	content := flags.String("content", "", "initial file content")
	contentFile := flags.String("content-file", "", "read initial content from `file`")
	description := flags.String("description", "", "human-readable description for the journal entry")

	return &Command{
		Flags: flags,
		Usage: "create <path> [--content <text> | --content-file <f>]",
		Short: "Create a new file",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errPathRequired
			}

			newContent, err := resolveContent(o, *content, *contentFile, flags.Changed("content"))
			if err != nil {
				return err
			}

			report := f.Create(ctx, facade.CreateParams{
				Path:        args[0],
				Content:     newContent,
				Description: *description,
			})

			return emit(o, report)
		},
	}
}
