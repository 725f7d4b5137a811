// Package facade implements the Tool Façade Layer: thin wrappers that
// resolve a task, enforce the token gate, drive a transaction through Safe
// File I/O, and report back a textual summary plus the journal tail. It is
// the one place request handling and the transactional editing core meet.
package facade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ntsdev/nts/pkg/core"
	"github.com/ntsdev/nts/pkg/extchange"
	"github.com/ntsdev/nts/pkg/fs"
	"github.com/ntsdev/nts/pkg/journal"
	"github.com/ntsdev/nts/pkg/task"
	"github.com/ntsdev/nts/pkg/textutil"
	"github.com/ntsdev/nts/pkg/token"
	"github.com/ntsdev/nts/pkg/txn"
)

// Report is the response every façade method returns: a textual summary the
// host protocol passes back as its `content` field, and whether it
// represents an error.
type Report struct {
	Content string
	IsError bool
}

func errReport(err error) Report {
	return Report{Content: err.Error(), IsError: true}
}

// Facade wraps a Task Context Registry with the tool operations of §4.9.
type Facade struct {
	registry *task.Registry
}

// New creates a Facade over reg.
func New(reg *task.Registry) *Facade {
	return &Facade{registry: reg}
}

func (f *Facade) resolve(ctx context.Context, taskID string) (*task.Task, error) {
	if taskID == "" {
		return f.registry.Current(ctx)
	}

	return f.registry.Get(ctx, taskID)
}

// fileView is a file's fully decoded state: text with any BOM stripped,
// split into lines, plus its detected charset and whole-file CRC.
type fileView struct {
	existed   bool
	text      string
	lines     []string
	charset   textutil.Charset
	lineCount int
	crc32c    uint32
}

// loadFile reads path through Safe I/O, rejects binary content, and runs
// the External Change Tracker's divergence check, promoting any detected
// outside edit into a journaled EXTERNAL_CHANGE entry before returning -
// matching §4.5's "the caller must invoke the transaction manager to
// record an EXTERNAL_CHANGE entry before proceeding".
func (f *Facade) loadFile(ctx context.Context, t *task.Task, path string) (fileView, error) {
	content, err := t.Writer.ReadAll(ctx, path)
	existed := err == nil

	if err != nil && !fs.IsNotExist(err) {
		return fileView{}, fmt.Errorf("read %q: %w", path, err)
	}

	if !existed {
		return fileView{existed: false}, nil
	}

	detect := textutil.DetectEncoding(content)

	if textutil.IsBinary(content, detect.Charset) {
		return fileView{}, core.New(core.KindBinaryFile, fmt.Sprintf("%s: refusing to read binary content", path))
	}

	text := string(textutil.StripBOM(content, detect.Charset))
	lines := textutil.SplitLines(text)
	crc := textutil.Crc32cOfString(text)

	check := t.External.CheckForExternalChange(path, crc, text, detect.Charset, len(lines))
	if check.Verdict == extchange.VerdictDetected {
		_, err := t.Txn.RecordExternalChange(ctx, path, []byte(check.Previous.Content), check.Previous.Crc32c, crc, check.Description)
		if err != nil {
			return fileView{}, fmt.Errorf("record external change for %q: %w", path, err)
		}
	}

	t.External.RegisterSnapshot(path, text, detect.Charset, len(lines))
	t.Lineage.UpdateCrc(path, text)

	return fileView{
		existed:   true,
		text:      text,
		lines:     lines,
		charset:   detect.Charset,
		lineCount: len(lines),
		crc32c:    crc,
	}, nil
}

// ReadParams selects the line range read returns a token for; zero values
// mean "the whole file".
type ReadParams struct {
	TaskID    string
	Path      string
	StartLine int
	EndLine   int
}

// Read reads path (or a line range of it), issues a Line Access Token over
// the returned range, and reports the content.
func (f *Facade) Read(ctx context.Context, p ReadParams) Report {
	t, err := f.resolve(ctx, p.TaskID)
	if err != nil {
		return errReport(err)
	}

	path, err := sanitizePath(t.WorkingDirectory, p.Path)
	if err != nil {
		return errReport(err)
	}

	view, err := f.loadFile(ctx, t, path)
	if err != nil {
		return errReport(err)
	}

	if !view.existed {
		return errReport(core.New(core.KindFileNotFound, path+": not found"))
	}

	start, end := p.StartLine, p.EndLine
	if start == 0 {
		start = 1
	}

	if end == 0 {
		end = view.lineCount
	}

	if start < 1 || end < start || end > view.lineCount {
		return errReport(core.New(core.KindParamOutOfRange, fmt.Sprintf("range [%d..%d] exceeds file of %d lines", start, end, view.lineCount)))
	}

	rangeCrc := textutil.Crc32cOfRange(view.lines, start, end)

	tok, err := token.New(path, start, end, rangeCrc, view.lineCount)
	if err != nil {
		return errReport(err)
	}

	issued := t.Tokens.Issue(tok, func(s, e int) (uint32, int) {
		return textutil.Crc32cOfRange(view.lines, s, e), view.lineCount
	})

	t.Validator.MarkAccessed(path)

	body := textutil.JoinRange(view.lines, start, end)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n---\ntoken: %s\n", body, token.Serialize(issued))

	f.registry.TouchActivity(ctx, t)

	return Report{Content: b.String()}
}

// EditParams describes a whole-range replacement edit gated by token.
type EditParams struct {
	TaskID      string
	Path        string
	Token       string
	NewContent  string
	Description string
	Instruction string
}

// Edit validates token against path's current state, replaces the token's
// line range with newContent, and commits a journaled, undoable mutation.
func (f *Facade) Edit(ctx context.Context, p EditParams) Report {
	t, err := f.resolve(ctx, p.TaskID)
	if err != nil {
		return errReport(err)
	}

	path, err := sanitizePath(t.WorkingDirectory, p.Path)
	if err != nil {
		return errReport(err)
	}

	decoded, derr := token.Decode(p.Token)
	if derr != nil {
		return errReport(core.Wrap(core.KindTokenNotFound, "malformed token", derr))
	}

	view, err := f.loadFile(ctx, t, path)
	if err != nil {
		return errReport(err)
	}

	if !view.existed {
		return errReport(core.New(core.KindFileNotFound, path+": not found"))
	}

	decoded = resolveLiveRange(t.Tokens, path, decoded)

	rangeCrc := textutil.Crc32cOfRange(view.lines, decoded.StartLine, decoded.EndLine)
	result := t.Validator.Validate(decoded, path, token.FileState{RangeCrc32c: rangeCrc, LineCount: view.lineCount})

	if result.Status != token.StatusValid {
		return errReport(core.New(tokenErrKind(result.Status), string(result.Status)+": "+result.Suggestion))
	}

	if decoded.StartLine < 1 || decoded.EndLine > view.lineCount || decoded.EndLine < decoded.StartLine {
		return errReport(core.New(core.KindParamLineExceeds, fmt.Sprintf("token range [%d..%d] exceeds file of %d lines", decoded.StartLine, decoded.EndLine, view.lineCount)))
	}

	t.Txn.StartTransaction(pick(p.Description, "edit "+path), p.Instruction)

	if err := t.Txn.Backup(ctx, path); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	newLines := append(append(append([]string{}, view.lines[:decoded.StartLine-1]...), textutil.SplitLines(p.NewContent)...), view.lines[decoded.EndLine:]...)
	newText := strings.Join(newLines, "\n")
	if len(newLines) > 0 {
		newText += "\n"
	}

	if err := t.Writer.Write(ctx, path, []byte(newText)); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	lineDelta := len(newLines) - len(view.lines)

	t.Tokens.ApplyEdit(path, decoded.StartLine, decoded.EndLine, lineDelta, func(s, e int) uint32 {
		return textutil.Crc32cOfRange(newLines, s, e)
	}, len(newLines))

	t.Lineage.UpdateCrc(path, newText)
	t.External.RegisterSnapshot(path, newText, view.charset, len(newLines))
	t.Validator.MarkAccessed(path)

	entry, err := t.Txn.Commit(ctx)
	if err != nil {
		return errReport(err)
	}

	_ = t.Search.InvalidatePaths([]string{path})

	newRangeStart := decoded.StartLine
	newRangeEnd := decoded.StartLine + len(textutil.SplitLines(p.NewContent)) - 1
	if newRangeEnd < newRangeStart {
		newRangeEnd = newRangeStart
	}

	newTok, terr := token.New(path, newRangeStart, newRangeEnd, textutil.Crc32cOfRange(newLines, newRangeStart, newRangeEnd), len(newLines))

	var b strings.Builder

	fmt.Fprintf(&b, "edited %s (journal entry %d)\n", path, entryID(entry))

	if terr == nil {
		fmt.Fprintf(&b, "token: %s\n", token.Serialize(newTok))
	}

	f.registry.TouchActivity(ctx, t)

	return Report{Content: b.String()}
}

// resolveLiveRange looks up path's currently tracked tokens for one whose
// RangeCrc32c still matches decoded's embedded CRC: the range's content
// hasn't changed since the token was issued, even though ApplyEdit may
// have shifted or grown it in response to an unrelated edit elsewhere in
// the file since. When found, decoded's range and line count are replaced
// with that entry's current values, so validation and the edit itself
// operate on the token's live position instead of the stale one embedded
// in the token string. A token whose content genuinely changed won't
// match any live entry's CRC and falls through unresolved, correctly
// reaching CRC_MISMATCH.
func resolveLiveRange(tracker *token.Tracker, path string, decoded token.Decoded) token.Decoded {
	for _, live := range tracker.Tokens(path) {
		if live.RangeCrc32c == decoded.RangeCrc {
			decoded.StartLine = live.StartLine
			decoded.EndLine = live.EndLine
			decoded.LineCount = live.LineCount

			break
		}
	}

	return decoded
}

func tokenErrKind(s token.Status) core.Kind {
	switch s {
	case token.StatusCrcMismatch:
		return core.KindTokenCRCMismatch
	case token.StatusLineCountMismatch:
		return core.KindTokenLineCountMismatch
	default:
		return core.KindTokenNotFound
	}
}

func entryID(e *journal.Entry) int64 {
	if e == nil {
		return 0
	}

	return e.ID
}

func pick(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

// CreateParams describes a new file to create.
type CreateParams struct {
	TaskID      string
	Path        string
	Content     string
	Description string
}

// Create writes a brand-new file under a journaled transaction and issues a
// token over its full contents.
func (f *Facade) Create(ctx context.Context, p CreateParams) Report {
	t, err := f.resolve(ctx, p.TaskID)
	if err != nil {
		return errReport(err)
	}

	path, err := sanitizePath(t.WorkingDirectory, p.Path)
	if err != nil {
		return errReport(err)
	}

	if _, err := t.Writer.ReadAll(ctx, path); err == nil {
		return errReport(core.New(core.KindParamConflicting, path+": already exists"))
	}

	t.Txn.StartTransaction(pick(p.Description, "create "+path), "")

	if err := t.Txn.Backup(ctx, path); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	if err := t.Writer.Write(ctx, path, []byte(p.Content)); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	lines := textutil.SplitLines(p.Content)
	detect := textutil.DetectEncoding([]byte(p.Content))

	t.Lineage.RegisterFile(path)
	t.Lineage.UpdateCrc(path, p.Content)
	t.External.RegisterSnapshot(path, p.Content, detect.Charset, len(lines))
	t.Validator.MarkAccessed(path)

	entry, err := t.Txn.Commit(ctx)
	if err != nil {
		return errReport(err)
	}

	_ = t.Search.InvalidatePaths([]string{path})

	var b strings.Builder

	fmt.Fprintf(&b, "created %s (journal entry %d)\n", path, entryID(entry))

	if len(lines) > 0 {
		crc := textutil.Crc32cOfRange(lines, 1, len(lines))
		if tok, terr := token.New(path, 1, len(lines), crc, len(lines)); terr == nil {
			fmt.Fprintf(&b, "token: %s\n", token.Serialize(tok))
		}
	}

	f.registry.TouchActivity(ctx, t)

	return Report{Content: b.String()}
}

// MoveParams describes a rename/move.
type MoveParams struct {
	TaskID string
	From   string
	To     string
}

// Move renames a file, transferring its lineage identity and outstanding
// tokens to the new path, under a journaled transaction whose two buffered
// snapshots (old path existed, new path did not) make the rename fully
// reversible through the normal undo path.
func (f *Facade) Move(ctx context.Context, p MoveParams) Report {
	t, err := f.resolve(ctx, p.TaskID)
	if err != nil {
		return errReport(err)
	}

	from, err := sanitizePath(t.WorkingDirectory, p.From)
	if err != nil {
		return errReport(err)
	}

	to, err := sanitizePath(t.WorkingDirectory, p.To)
	if err != nil {
		return errReport(err)
	}

	t.Txn.StartTransaction(fmt.Sprintf("move %s -> %s", from, to), "")

	if err := t.Txn.Backup(ctx, from); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	if err := t.Txn.Backup(ctx, to); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	if err := t.Writer.Move(ctx, from, to); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	t.Lineage.RecordMove(from, to)
	t.Tokens.Rename(from, to)
	t.External.Forget(from)
	t.Validator.MarkAccessed(to)

	entry, err := t.Txn.Commit(ctx)
	if err != nil {
		return errReport(err)
	}

	_ = t.Search.InvalidatePaths([]string{from, to})

	f.registry.TouchActivity(ctx, t)

	return Report{Content: fmt.Sprintf("moved %s -> %s (journal entry %d)", from, to, entryID(entry))}
}

// DeleteParams describes a file to delete.
type DeleteParams struct {
	TaskID string
	Path   string
}

// Delete removes a file under a journaled transaction; undo recreates it
// from the buffered snapshot.
func (f *Facade) Delete(ctx context.Context, p DeleteParams) Report {
	t, err := f.resolve(ctx, p.TaskID)
	if err != nil {
		return errReport(err)
	}

	path, err := sanitizePath(t.WorkingDirectory, p.Path)
	if err != nil {
		return errReport(err)
	}

	t.Txn.StartTransaction("delete "+path, "")

	if err := t.Txn.Backup(ctx, path); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	if err := t.Writer.Delete(ctx, path); err != nil {
		_ = t.Txn.Rollback(ctx)

		return errReport(err)
	}

	t.External.Forget(path)

	entry, err := t.Txn.Commit(ctx)
	if err != nil {
		return errReport(err)
	}

	_ = t.Search.InvalidatePaths([]string{path})

	f.registry.TouchActivity(ctx, t)

	return Report{Content: fmt.Sprintf("deleted %s (journal entry %d)", path, entryID(entry))}
}

// Undo pops and reverses the top of the current task's undo stack.
func (f *Facade) Undo(ctx context.Context, taskID string) Report {
	t, err := f.resolve(ctx, taskID)
	if err != nil {
		return errReport(err)
	}

	result, err := t.Txn.Undo(ctx)
	if err != nil {
		return errReport(err)
	}

	f.registry.TouchActivity(ctx, t)

	return Report{Content: undoReportLine("undid", result)}
}

// Redo re-applies the top of the current task's redo stack.
func (f *Facade) Redo(ctx context.Context, taskID string) Report {
	t, err := f.resolve(ctx, taskID)
	if err != nil {
		return errReport(err)
	}

	result, err := t.Txn.Redo(ctx)
	if err != nil {
		return errReport(err)
	}

	f.registry.TouchActivity(ctx, t)

	return Report{Content: undoReportLine("redid", result)}
}

func undoReportLine(verb string, result txn.UndoResult) string {
	if result.FollowedMove {
		return fmt.Sprintf("%s entry %d: %s (followed rename to %s)", verb, result.EntryID, result.Description, result.ResolvedPath)
	}

	return fmt.Sprintf("%s entry %d: %s", verb, result.EntryID, result.Description)
}

// CheckpointParams names a checkpoint to create or roll back to.
type CheckpointParams struct {
	TaskID string
	Name   string
	Action string // "create" or "rollback"
}

// Checkpoint creates or rolls back to a named checkpoint.
func (f *Facade) Checkpoint(ctx context.Context, p CheckpointParams) Report {
	t, err := f.resolve(ctx, p.TaskID)
	if err != nil {
		return errReport(err)
	}

	if p.Name == "" {
		return errReport(core.New(core.KindParamMissing, "checkpoint name is required"))
	}

	switch p.Action {
	case "rollback":
		results, err := t.Txn.RollbackToCheckpoint(ctx, p.Name)
		if err != nil {
			return errReport(err)
		}

		f.registry.TouchActivity(ctx, t)

		return Report{Content: fmt.Sprintf("rolled back to checkpoint %q, undoing %d entries", p.Name, len(results))}
	default:
		id, err := t.Txn.CreateCheckpoint(ctx, p.Name)
		if err != nil {
			return errReport(err)
		}

		f.registry.TouchActivity(ctx, t)

		return Report{Content: fmt.Sprintf("created checkpoint %q (entry %d)", p.Name, id)}
	}
}

// TaskParams selects, creates, or resets a task context.
type TaskParams struct {
	Action           string // "select", "create", "reset"
	TaskID           string
	WorkingDirectory string
	DeleteFiles      bool
}

// Task manages the task context per §4.8.
func (f *Facade) Task(ctx context.Context, p TaskParams) Report {
	switch p.Action {
	case "create":
		var (
			t   *task.Task
			err error
		)

		if p.TaskID == "" {
			t, err = f.registry.Create(ctx, p.WorkingDirectory)
		} else {
			t, err = f.registry.CreateWithID(ctx, p.TaskID, p.WorkingDirectory)
		}

		if err != nil {
			return errReport(err)
		}

		f.registry.SetCurrent(t.ID)

		return Report{Content: fmt.Sprintf("created task %s", t.ID)}
	case "reset":
		if err := f.registry.Reset(p.TaskID, p.DeleteFiles); err != nil {
			return errReport(err)
		}

		return Report{Content: fmt.Sprintf("reset task %s", pick(p.TaskID, task.DefaultTaskID))}
	default: // "select"
		t, err := f.registry.Get(ctx, p.TaskID)
		if err != nil {
			return errReport(err)
		}

		f.registry.SetCurrent(t.ID)

		return Report{Content: fmt.Sprintf(
			"selected task %s (created %s, last activity %s)",
			t.ID, t.CreatedAt.UTC().Format(time.RFC3339), t.LastActivityAt().UTC().Format(time.RFC3339),
		)}
	}
}
