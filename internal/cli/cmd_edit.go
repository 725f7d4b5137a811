package cli

import (
	"context"
	"errors"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
)

// EditCmd returns the edit command: replaces a token-gated line range with
// new content read from --content, a file named by --content-file, or
// stdin when neither is given.
func EditCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("edit", flag.ContinueOnError)
	token := flags.String("token", "", "Line Access Token covering the range to replace (required)")
	content := flags.String("content", "", "replacement content")
	contentFile := flags.String("content-file", "", "read replacement content from `file`")
	description := flags.String("description", "", "human-readable description for the journal entry")
	instruction := flags.String("instruction", "", "the instruction that prompted this edit")

	return &Command{
		Flags: flags,
		Usage: "edit <path> --token <t> [--content <text> | --content-file <f>]",
		Short: "Replace a token-gated line range",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errPathRequired
			}

			if *token == "" {
				return errors.New("--token is required")
			}

			newContent, err := resolveContent(o, *content, *contentFile, flags.Changed("content"))
			if err != nil {
				return err
			}

			report := f.Edit(ctx, facade.EditParams{
				Path:        args[0],
				Token:       *token,
				NewContent:  newContent,
				Description: *description,
				Instruction: *instruction,
			})

			return emit(o, report)
		},
	}
}

func resolveContent(o *IO, content, contentFile string, contentFlagSet bool) (string, error) {
	if contentFlagSet {
		return content, nil
	}

	if contentFile != "" {
		data, err := os.ReadFile(contentFile)
		if err != nil {
			return "", err
		}

		return string(data), nil
	}

	data, err := io.ReadAll(o.Stdin())
	if err != nil {
		return "", err
	}

	return string(data), nil
}
