package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/pkg/config"
)

// ConfigCmd returns the config command: prints the effective, merged
// configuration as JSON.
func ConfigCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("config", flag.ContinueOnError),
		Usage: "config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration after merging defaults, global config, project config, and overrides.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			formatted, err := config.Format(cfg)
			if err != nil {
				return err
			}

			o.Println(formatted)

			return nil
		},
	}
}
