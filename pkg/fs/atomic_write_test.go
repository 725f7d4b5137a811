package fs_test

import (
	"context"
	"os"
	"testing"

	"github.com/ntsdev/nts/pkg/fs"
)

const testContentHello = "hello, world\n"

func TestAtomicWriter_WriteThenReadBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := dir + "/final.txt"

	writer := fs.NewAtomicWriter(fs.NewReal())
	ctx := context.Background()

	if err := writer.Write(ctx, path, []byte(testContentHello)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := writer.ReadAll(ctx, path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}

	for _, suffix := range []string{".tmp", ".old"} {
		if _, err := os.Stat(path + suffix); !os.IsNotExist(err) {
			t.Fatalf("expected %s not to exist, stat err=%v", path+suffix, err)
		}
	}
}

func TestAtomicWriter_OverwriteLeavesNoSidecars(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := dir + "/final.txt"

	writer := fs.NewAtomicWriter(fs.NewReal())
	ctx := context.Background()

	if err := writer.Write(ctx, path, []byte("v1")); err != nil {
		t.Fatalf("Write v1: %v", err)
	}

	if err := writer.Write(ctx, path, []byte("v2 longer content")); err != nil {
		t.Fatalf("Write v2: %v", err)
	}

	got, err := writer.ReadAll(ctx, path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if string(got) != "v2 longer content" {
		t.Fatalf("content=%q, want v2 longer content", string(got))
	}

	for _, suffix := range []string{".tmp", ".old"} {
		if _, err := os.Stat(path + suffix); !os.IsNotExist(err) {
			t.Fatalf("expected %s not to exist, stat err=%v", path+suffix, err)
		}
	}
}

// TestAtomicWriter_PreservesPriorContentOnRenameFailure exercises testable
// property 1 (§8): when every rename is forced to fail (so the backup rename
// of path fails before the final tmp->path rename is reached), path must
// still contain its pre-write content and no .tmp file may survive.
func TestAtomicWriter_PreservesPriorContentOnRenameFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := dir + "/final.txt"

	real := fs.NewReal()
	if err := real.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	chaos := fs.NewChaos(real, 1, &fs.ChaosConfig{RenameFailRate: 1.0})
	writer := fs.NewAtomicWriter(chaos)

	err := writer.Write(context.Background(), path, []byte("replacement"))
	if err == nil {
		t.Fatal("expected write to fail when every rename is injected to fail")
	}

	got, readErr := real.ReadFile(path)
	if readErr != nil {
		t.Fatalf("ReadFile after failed write: %v", readErr)
	}

	if string(got) != "original" {
		t.Fatalf("content=%q, want original content preserved", string(got))
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected %s.tmp not to survive a failed write", path)
	}
}

func TestAtomicWriter_CopyDuplicatesContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := dir + "/src.txt"
	dst := dir + "/dst.txt"

	writer := fs.NewAtomicWriter(fs.NewReal())
	ctx := context.Background()

	if err := writer.Write(ctx, src, []byte(testContentHello)); err != nil {
		t.Fatalf("Write src: %v", err)
	}

	if err := writer.Copy(ctx, src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	got, err := writer.ReadAll(ctx, dst)
	if err != nil {
		t.Fatalf("ReadAll dst: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("dst content=%q, want %q", string(got), testContentHello)
	}
}

func TestAtomicWriter_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := dir + "/gone.txt"

	writer := fs.NewAtomicWriter(fs.NewReal())
	ctx := context.Background()

	if err := writer.Delete(ctx, path); err != nil {
		t.Fatalf("Delete of absent file: %v", err)
	}

	if err := writer.Write(ctx, path, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := writer.Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := writer.Delete(ctx, path); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
