package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/ntsdev/nts/internal/facade"
	"github.com/ntsdev/nts/pkg/task"
)

// shell is the interactive REPL over the Facade, for a human or an agent
// harness driving nts one line at a time instead of one process per call.
type shell struct {
	f      *facade.Facade
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	liner  *liner.State
}

func runShell(in io.Reader, out, errOut io.Writer, f *facade.Facade, _ *task.Registry) int {
	if in == nil {
		in = os.Stdin
	}

	s := &shell{f: f, in: in, out: out, errOut: errOut}

	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if hf, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(hf)
		hf.Close()
	}

	fmt.Fprintln(s.out, "nts shell - type 'help' for commands, 'exit' to quit")

	for {
		line, err := s.liner.Prompt("nts> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}

			fmt.Fprintln(s.errOut, "error:", err)

			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		if s.dispatch(line) {
			break
		}
	}

	s.saveHistory()

	return 0
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".nts_history")
}

func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (s *shell) completer(line string) []string {
	verbs := []string{"read", "edit", "create", "move", "delete", "undo", "redo", "checkpoint", "task", "help", "exit", "quit"}

	var out []string

	lower := strings.ToLower(line)
	for _, v := range verbs {
		if strings.HasPrefix(v, lower) {
			out = append(out, v)
		}
	}

	return out
}

// dispatch runs one REPL line and reports whether the shell should exit.
func (s *shell) dispatch(line string) bool {
	parts := strings.Fields(line)
	verb := strings.ToLower(parts[0])
	args := parts[1:]

	ctx := context.Background()

	switch verb {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		s.printHelp()
	case "read":
		s.print(s.cmdRead(ctx, args))
	case "edit":
		s.print(s.cmdEdit(ctx, args))
	case "create":
		s.print(s.cmdCreate(ctx, args))
	case "move":
		s.print(s.cmdMove(ctx, args))
	case "delete":
		s.print(s.cmdDelete(ctx, args))
	case "undo":
		s.print(s.f.Undo(ctx, ""))
	case "redo":
		s.print(s.f.Redo(ctx, ""))
	case "checkpoint":
		s.print(s.cmdCheckpoint(ctx, args))
	case "task":
		s.print(s.cmdTask(ctx, args))
	default:
		fmt.Fprintf(s.out, "unknown command: %s (type 'help' for commands)\n", verb)
	}

	return false
}

func (s *shell) print(report facade.Report) {
	if report.IsError {
		fmt.Fprintln(s.errOut, "error:", report.Content)

		return
	}

	fmt.Fprint(s.out, report.Content)

	if !strings.HasSuffix(report.Content, "\n") {
		fmt.Fprintln(s.out)
	}
}

func (s *shell) cmdRead(ctx context.Context, args []string) facade.Report {
	if len(args) == 0 {
		return facade.Report{Content: "usage: read <path> [start] [end]", IsError: true}
	}

	p := facade.ReadParams{Path: args[0]}

	if len(args) >= 2 {
		p.StartLine, _ = strconv.Atoi(args[1])
	}

	if len(args) >= 3 {
		p.EndLine, _ = strconv.Atoi(args[2])
	}

	return s.f.Read(ctx, p)
}

func (s *shell) cmdEdit(ctx context.Context, args []string) facade.Report {
	if len(args) < 2 {
		return facade.Report{Content: "usage: edit <path> <token> [content-file]", IsError: true}
	}

	var content string

	if len(args) >= 3 {
		data, err := os.ReadFile(args[2])
		if err != nil {
			return facade.Report{Content: err.Error(), IsError: true}
		}

		content = string(data)
	} else {
		data, err := io.ReadAll(s.in)
		if err != nil {
			return facade.Report{Content: err.Error(), IsError: true}
		}

		content = string(data)
	}

	return s.f.Edit(ctx, facade.EditParams{Path: args[0], Token: args[1], NewContent: content})
}

func (s *shell) cmdCreate(ctx context.Context, args []string) facade.Report {
	if len(args) == 0 {
		return facade.Report{Content: "usage: create <path> [content-file]", IsError: true}
	}

	var content string

	if len(args) >= 2 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return facade.Report{Content: err.Error(), IsError: true}
		}

		content = string(data)
	}

	return s.f.Create(ctx, facade.CreateParams{Path: args[0], Content: content})
}

func (s *shell) cmdMove(ctx context.Context, args []string) facade.Report {
	if len(args) < 2 {
		return facade.Report{Content: "usage: move <from> <to>", IsError: true}
	}

	return s.f.Move(ctx, facade.MoveParams{From: args[0], To: args[1]})
}

func (s *shell) cmdDelete(ctx context.Context, args []string) facade.Report {
	if len(args) == 0 {
		return facade.Report{Content: "usage: delete <path>", IsError: true}
	}

	return s.f.Delete(ctx, facade.DeleteParams{Path: args[0]})
}

func (s *shell) cmdCheckpoint(ctx context.Context, args []string) facade.Report {
	if len(args) == 0 {
		return facade.Report{Content: "usage: checkpoint <name> [rollback]", IsError: true}
	}

	action := "create"
	if len(args) >= 2 && args[1] == "rollback" {
		action = "rollback"
	}

	return s.f.Checkpoint(ctx, facade.CheckpointParams{Name: args[0], Action: action})
}

func (s *shell) cmdTask(ctx context.Context, args []string) facade.Report {
	if len(args) == 0 {
		return facade.Report{Content: "usage: task <select|create|reset> [id] [working-dir]", IsError: true}
	}

	p := facade.TaskParams{Action: args[0]}

	if len(args) >= 2 {
		p.TaskID = args[1]
	}

	if len(args) >= 3 {
		p.WorkingDirectory = args[2]
	}

	return s.f.Task(ctx, p)
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  read <path> [start] [end]            Read a file or line range")
	fmt.Fprintln(s.out, "  edit <path> <token> [content-file]    Replace a token-gated range")
	fmt.Fprintln(s.out, "  create <path> [content-file]          Create a new file")
	fmt.Fprintln(s.out, "  move <from> <to>                      Rename/move a file")
	fmt.Fprintln(s.out, "  delete <path>                         Delete a file")
	fmt.Fprintln(s.out, "  undo / redo                           Undo or redo the last mutation")
	fmt.Fprintln(s.out, "  checkpoint <name> [rollback]          Create or roll back to a checkpoint")
	fmt.Fprintln(s.out, "  task <select|create|reset> [id] [dir] Manage task contexts")
	fmt.Fprintln(s.out, "  help                                  Show this help")
	fmt.Fprintln(s.out, "  exit / quit / q                       Exit")
}
