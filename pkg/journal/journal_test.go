package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/ntsdev/nts/pkg/journal"
)

func openTestStore(t *testing.T) *journal.Store {
	t.Helper()

	store, err := journal.InMemory(context.Background())
	if err != nil {
		t.Fatalf("InMemory: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestAppendEntry_AssignsDensePositions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	_, pos0, err := store.AppendEntry(ctx, journal.Entry{
		Stack: journal.StackUndo, Type: journal.EntryTransaction,
		CreatedAt: time.Unix(100, 0), Description: "first", Status: journal.StatusCommitted,
	})
	if err != nil {
		t.Fatalf("AppendEntry 1: %v", err)
	}

	_, pos1, err := store.AppendEntry(ctx, journal.Entry{
		Stack: journal.StackUndo, Type: journal.EntryTransaction,
		CreatedAt: time.Unix(101, 0), Description: "second", Status: journal.StatusCommitted,
	})
	if err != nil {
		t.Fatalf("AppendEntry 2: %v", err)
	}

	if pos0 != 0 || pos1 != 1 {
		t.Fatalf("positions = %d, %d, want 0, 1", pos0, pos1)
	}
}

func TestPeekTopAndPopTop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	if _, ok, err := store.PeekTop(ctx, journal.StackUndo); err != nil || ok {
		t.Fatalf("PeekTop on empty stack: ok=%v err=%v", ok, err)
	}

	id, _, err := store.AppendEntry(ctx, journal.Entry{
		Stack: journal.StackUndo, Type: journal.EntryTransaction,
		CreatedAt: time.Unix(100, 0), Description: "edit main.go", Status: journal.StatusCommitted,
	})
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	top, ok, err := store.PeekTop(ctx, journal.StackUndo)
	if err != nil || !ok {
		t.Fatalf("PeekTop: ok=%v err=%v", ok, err)
	}

	if top.ID != id || top.Description != "edit main.go" {
		t.Fatalf("unexpected top entry: %+v", top)
	}

	popped, ok, err := store.PopTop(ctx, journal.StackUndo)
	if err != nil || !ok {
		t.Fatalf("PopTop: ok=%v err=%v", ok, err)
	}

	if popped.ID != id {
		t.Fatalf("popped ID = %d, want %d", popped.ID, id)
	}

	if _, ok, _ := store.PeekTop(ctx, journal.StackUndo); ok {
		t.Fatal("expected stack to be empty after pop")
	}
}

func TestPushToOppositeStack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	entry, _, _ := store.AppendEntry(ctx, journal.Entry{
		Stack: journal.StackUndo, Type: journal.EntryTransaction,
		CreatedAt: time.Unix(100, 0), Description: "edit", Status: journal.StatusCommitted,
	})

	popped, _, err := store.PopTop(ctx, journal.StackUndo)
	if err != nil {
		t.Fatalf("PopTop: %v", err)
	}

	_, redoPos, err := store.PushToOppositeStack(ctx, popped)
	if err != nil {
		t.Fatalf("PushToOppositeStack: %v", err)
	}

	if redoPos != 0 {
		t.Fatalf("redoPos = %d, want 0", redoPos)
	}

	top, ok, err := store.PeekTop(ctx, journal.StackRedo)
	if err != nil || !ok {
		t.Fatalf("PeekTop redo: ok=%v err=%v", ok, err)
	}

	if top.Description != "edit" {
		t.Fatalf("redo entry description = %q, want edit", top.Description)
	}

	_ = entry
}

func TestTruncateRedo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	_, _, err := store.AppendEntry(ctx, journal.Entry{
		Stack: journal.StackRedo, Type: journal.EntryTransaction,
		CreatedAt: time.Unix(100, 0), Description: "undone edit", Status: journal.StatusCommitted,
	})
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	if err := store.TruncateRedo(ctx); err != nil {
		t.Fatalf("TruncateRedo: %v", err)
	}

	if _, ok, _ := store.PeekTop(ctx, journal.StackRedo); ok {
		t.Fatal("expected redo stack to be empty after truncate")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	if _, ok, err := store.GetMetadata(ctx, "working_directory"); err != nil || ok {
		t.Fatalf("expected absent metadata, got ok=%v err=%v", ok, err)
	}

	if err := store.SetMetadata(ctx, "working_directory", "/repo"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	value, ok, err := store.GetMetadata(ctx, "working_directory")
	if err != nil || !ok {
		t.Fatalf("GetMetadata: ok=%v err=%v", ok, err)
	}

	if value != "/repo" {
		t.Fatalf("value = %q, want /repo", value)
	}

	if err := store.SetMetadata(ctx, "working_directory", "/repo2"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}

	value, _, _ = store.GetMetadata(ctx, "working_directory")
	if value != "/repo2" {
		t.Fatalf("value after overwrite = %q, want /repo2", value)
	}
}

func TestBumpCounter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	v, err := store.BumpCounter(ctx, "totalEdits", 1)
	if err != nil {
		t.Fatalf("BumpCounter: %v", err)
	}

	if v != 1 {
		t.Fatalf("v = %d, want 1", v)
	}

	v, err = store.BumpCounter(ctx, "totalEdits", 1)
	if err != nil {
		t.Fatalf("BumpCounter: %v", err)
	}

	if v != 2 {
		t.Fatalf("v = %d, want 2", v)
	}
}

func TestAttachSnapshotAndDiff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	id, _, err := store.AppendEntry(ctx, journal.Entry{
		Stack: journal.StackUndo, Type: journal.EntryTransaction,
		CreatedAt: time.Unix(100, 0), Description: "edit", Status: journal.StatusCommitted,
	})
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	err = store.AttachSnapshot(ctx, id, journal.FileSnapshot{
		FilePath: "/repo/a.go", Content: []byte("package main\n"), FileSize: 13, Crc32c: 42,
	})
	if err != nil {
		t.Fatalf("AttachSnapshot: %v", err)
	}

	snapshots, err := store.Snapshots(ctx, id)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}

	if len(snapshots) != 1 || snapshots[0].FilePath != "/repo/a.go" {
		t.Fatalf("unexpected snapshots: %+v", snapshots)
	}

	err = store.AttachDiff(ctx, id, journal.DiffStat{
		FilePath: "/repo/a.go", LinesAdded: 1, LinesDeleted: 0, AffectedBlocks: 1, UnifiedDiff: "+package main",
	})
	if err != nil {
		t.Fatalf("AttachDiff: %v", err)
	}
}

func TestMarkStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	id, _, err := store.AppendEntry(ctx, journal.Entry{
		Stack: journal.StackUndo, Type: journal.EntryTransaction,
		CreatedAt: time.Unix(100, 0), Description: "edit", Status: journal.StatusCommitted,
	})
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	if err := store.MarkStatus(ctx, id, journal.StatusRolledBack); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}

	top, _, err := store.PeekTop(ctx, journal.StackUndo)
	if err != nil {
		t.Fatalf("PeekTop: %v", err)
	}

	if top.Status != journal.StatusRolledBack {
		t.Fatalf("Status = %v, want ROLLED_BACK", top.Status)
	}
}
