package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ntsdev/nts/internal/facade"
	"github.com/ntsdev/nts/pkg/config"
	"github.com/ntsdev/nts/pkg/fs"
	"github.com/ntsdev/nts/pkg/task"
)

// Run is the main entry point. Returns exit code.
// sigCh can be nil if signal handling is not needed (e.g., in tests).
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	// Create fresh global flags for this invocation
	globalFlags := flag.NewFlagSet("nts", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagStateRoot := globalFlags.String("state-root", "", "Override state root `dir`")
	flagTask := globalFlags.StringP("task", "t", "", "Task id to operate under (default: \"default\")")

	// Validate global flags.
	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fprintln(errOut, "error:", err)

			return 1
		}

		workDir = wd
	}

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	// Ensure that configuration can be loaded and is valid.
	cfg, _, err := config.Load(workDir, *flagConfig, config.Config{StateRoot: *flagStateRoot}, *flagStateRoot != "", envList)
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	fsys := fs.NewReal()
	registry := task.NewRegistry(cfg.StateRoot, fsys, slog.New(slog.NewTextHandler(errOut, nil)))
	defer registry.Close()

	if *flagTask != "" {
		registry.SetCurrent(*flagTask)
	}

	if t, err := registry.Current(context.Background()); err == nil && t.WorkingDirectory == "" {
		t.WorkingDirectory = workDir
		if cfg.DefaultWorkingDir != "" {
			t.WorkingDirectory = cfg.DefaultWorkingDir
		}
	}

	f := facade.New(registry)

	// Create all commands so that from now on, we can show
	// all of them inside error output/help.
	commands := allCommands(f, cfg)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	// Show help: explicit --help or bare `nts` with no args
	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	// Flags provided but no command: `nts --cwd /tmp`
	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	// Dispatch to command
	cmdName := commandAndArgs[0]

	if cmdName == "shell" {
		return runShell(in, out, errOut, f, registry)
	}

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(in, out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run command in goroutine so we can handle signals
	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	// Wait for completion or first signal (nil channel never fires)
	select {
	case exitCode := <-done:
		if exitCode != 0 {
			return exitCode
		}

		return cmdIO.Finish()
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	// Wait for completion, timeout, or second signal
	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

// allCommands returns all commands in display order.
// Dependencies are captured via closures in each command constructor.
func allCommands(f *facade.Facade, cfg config.Config) []*Command {
	return []*Command{
		ReadCmd(f),
		EditCmd(f),
		CreateCmd(f),
		MoveCmd(f),
		DeleteCmd(f),
		UndoCmd(f),
		RedoCmd(f),
		CheckpointCmd(f),
		TaskCmd(f),
		ConfigCmd(cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help             Show help
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  --state-root <dir>     Override state root directory
  -t, --task <id>        Task id to operate under`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: nts [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'nts --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "nts - transactional file editing core for LLM agents")
	fprintln(w)
	fprintln(w, "Usage: nts [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w, "  shell                  Start an interactive REPL")
}
