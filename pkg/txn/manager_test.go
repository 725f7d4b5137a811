package txn_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ntsdev/nts/pkg/extchange"
	"github.com/ntsdev/nts/pkg/fs"
	"github.com/ntsdev/nts/pkg/journal"
	"github.com/ntsdev/nts/pkg/lineage"
	"github.com/ntsdev/nts/pkg/token"
	"github.com/ntsdev/nts/pkg/txn"
)

type harness struct {
	mgr *txn.Manager
	dir string
}

func newHarness(t *testing.T) harness {
	t.Helper()

	store, err := journal.InMemory(context.Background())
	if err != nil {
		t.Fatalf("journal.InMemory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	writer := fs.NewAtomicWriter(fs.NewReal())
	mgr := txn.New(store, lineage.New(), extchange.New(nil), token.NewTracker(), writer)

	return harness{mgr: mgr, dir: t.TempDir()}
}

func (h harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func TestCommitThenUndoRestoresPriorContent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	target := h.path("a.go")

	if err := os.WriteFile(target, []byte("v1"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	h.mgr.StartTransaction("edit a.go", "")

	if err := h.mgr.Backup(ctx, target); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if err := os.WriteFile(target, []byte("v2"), 0o644); err != nil {
		t.Fatalf("mutate file: %v", err)
	}

	if _, err := h.mgr.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	result, err := h.mgr.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}

	if result.ResolvedPath != target {
		t.Fatalf("ResolvedPath = %q, want %q", result.ResolvedPath, target)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "v1" {
		t.Fatalf("content after undo = %q, want v1", got)
	}
}

func TestUndoThenRedoReappliesChange(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	target := h.path("a.go")

	os.WriteFile(target, []byte("v1"), 0o644)

	h.mgr.StartTransaction("edit a.go", "")
	h.mgr.Backup(ctx, target)
	os.WriteFile(target, []byte("v2"), 0o644)
	h.mgr.Commit(ctx)

	if _, err := h.mgr.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	if _, err := h.mgr.Redo(ctx); err != nil {
		t.Fatalf("Redo: %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "v2" {
		t.Fatalf("content after redo = %q, want v2", got)
	}
}

func TestUndo_NothingToUndoIsAnError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	if _, err := h.mgr.Undo(context.Background()); err == nil {
		t.Fatal("expected an error when undoing with an empty stack")
	}
}

func TestRollback_RestoresOriginalAndDoesNotJournal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	target := h.path("a.go")

	os.WriteFile(target, []byte("v1"), 0o644)

	h.mgr.StartTransaction("edit a.go", "")
	h.mgr.Backup(ctx, target)
	os.WriteFile(target, []byte("v2"), 0o644)

	if err := h.mgr.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "v1" {
		t.Fatalf("content after rollback = %q, want v1", got)
	}

	if _, err := h.mgr.Undo(ctx); err == nil {
		t.Fatal("expected nothing to undo after a rollback (no journal entry was created)")
	}
}

func TestRollback_DeletesFileThatDidNotExistBefore(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	target := h.path("new.go")

	h.mgr.StartTransaction("create new.go", "")
	h.mgr.Backup(ctx, target)
	os.WriteFile(target, []byte("content"), 0o644)

	if err := h.mgr.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("expected %s to not exist after rollback, stat err=%v", target, err)
	}
}

func TestNestedTransaction_CommitsIntoParent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	a := h.path("a.go")
	b := h.path("b.go")

	os.WriteFile(a, []byte("a1"), 0o644)
	os.WriteFile(b, []byte("b1"), 0o644)

	h.mgr.StartTransaction("outer", "")
	h.mgr.Backup(ctx, a)
	os.WriteFile(a, []byte("a2"), 0o644)

	h.mgr.StartTransaction("inner", "")
	h.mgr.Backup(ctx, b)
	os.WriteFile(b, []byte("b2"), 0o644)

	entry, err := h.mgr.Commit(ctx) // commits the inner transaction
	if err != nil {
		t.Fatalf("inner Commit: %v", err)
	}

	if entry != nil {
		t.Fatalf("expected nested commit to return nil entry, got %+v", entry)
	}

	if _, err := h.mgr.Commit(ctx); err != nil { // commits the outer transaction
		t.Fatalf("outer Commit: %v", err)
	}

	// A single Undo should restore both files, since the inner transaction's
	// snapshot was folded into the outer one.
	if _, err := h.mgr.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	gotA, _ := os.ReadFile(a)
	gotB, _ := os.ReadFile(b)

	if string(gotA) != "a1" || string(gotB) != "b1" {
		t.Fatalf("after undo: a=%q b=%q, want a1/b1", gotA, gotB)
	}
}

func TestCheckpointAndRollbackToCheckpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	target := h.path("a.go")

	os.WriteFile(target, []byte("v1"), 0o644)

	if _, err := h.mgr.CreateCheckpoint(ctx, "before-edits"); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	h.mgr.StartTransaction("edit 1", "")
	h.mgr.Backup(ctx, target)
	os.WriteFile(target, []byte("v2"), 0o644)
	h.mgr.Commit(ctx)

	h.mgr.StartTransaction("edit 2", "")
	h.mgr.Backup(ctx, target)
	os.WriteFile(target, []byte("v3"), 0o644)
	h.mgr.Commit(ctx)

	results, err := h.mgr.RollbackToCheckpoint(ctx, "before-edits")
	if err != nil {
		t.Fatalf("RollbackToCheckpoint: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 undo results, got %d", len(results))
	}

	got, _ := os.ReadFile(target)
	if string(got) != "v1" {
		t.Fatalf("content after rollback to checkpoint = %q, want v1", got)
	}
}

func TestRecordExternalChange_IsUndoable(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	target := h.path("a.go")

	os.WriteFile(target, []byte("original"), 0o644)

	_, err := h.mgr.RecordExternalChange(ctx, target, []byte("original"), 1, 2, "file changed outside this task")
	if err != nil {
		t.Fatalf("RecordExternalChange: %v", err)
	}

	os.WriteFile(target, []byte("externally modified"), 0o644)

	if _, err := h.mgr.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "original" {
		t.Fatalf("content after undoing external change = %q, want original", got)
	}
}
