package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
)

var errPathRequired = errors.New("path is required")

// ReadCmd returns the read command: reads a file (or a line range of it)
// and issues a Line Access Token over the returned range.
func ReadCmd(f *facade.Facade) *Command {
	flags := flag.NewFlagSet("read", flag.ContinueOnError)
	start := flags.Int("start-line", 0, "first line to read (1-based, default: whole file)")
	end := flags.Int("end-line", 0, "last line to read (default: whole file)")

	return &Command{
		Flags: flags,
		Usage: "read <path> [--start-line N] [--end-line N]",
		Short: "Read a file and issue a Line Access Token",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errPathRequired
			}

			report := f.Read(ctx, facade.ReadParams{
				Path:      args[0],
				StartLine: *start,
				EndLine:   *end,
			})

			return emit(o, report)
		},
	}
}

// emit writes a Report's content and turns an error report into a Go
// error so Command.Run prints it consistently and sets exit code 1.
func emit(o *IO, report facade.Report) error {
	if report.IsError {
		return errors.New(report.Content)
	}

	o.Printf("%s", report.Content)

	return nil
}
