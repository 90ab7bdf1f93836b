package fs

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestFaulty_FailIsStickyUntilCleared(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")

	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	fsys := NewFaulty(NewReal())
	fsys.Fail(OpRead, path, nil)

	for range 3 {
		_, err := fsys.ReadFile(path)
		if !errors.Is(err, syscall.EIO) {
			t.Fatalf("err=%v, want EIO", err)
		}

		if !IsInjected(err) {
			t.Fatalf("IsInjected(%v)=false, want true", err)
		}
	}

	if got, want := fsys.Injected(), int64(3); got != want {
		t.Fatalf("Injected()=%d, want=%d", got, want)
	}

	fsys.Clear(OpRead, path)

	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile after Clear: %v", err)
	}

	if string(data) != "{}" {
		t.Fatalf("data=%q, want {}", data)
	}
}

func TestFaulty_OnlyMatchingOpAndPathFail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	primary := filepath.Join(dir, "db.json")
	backup := filepath.Join(dir, "db.backup.json")

	fsys := NewFaulty(NewReal())
	fsys.Fail(OpWrite, primary, syscall.ENOSPC)

	if err := fsys.WriteFileAtomic(backup, []byte("b"), 0o644); err != nil {
		t.Fatalf("write backup: %v", err)
	}

	err := fsys.WriteFileAtomic(primary, []byte("p"), 0o644)
	if !errors.Is(err, syscall.ENOSPC) {
		t.Fatalf("write primary err=%v, want ENOSPC", err)
	}

	if _, err := fsys.ReadFile(backup); err != nil {
		t.Fatalf("read backup: %v", err)
	}

	fsys.ClearAll()

	if err := fsys.WriteFileAtomic(primary, []byte("p"), 0o644); err != nil {
		t.Fatalf("write primary after ClearAll: %v", err)
	}
}

func TestIsInjected_RealErrorsAreNotInjected(t *testing.T) {
	t.Parallel()

	_, err := NewReal().ReadFile(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error")
	}

	if IsInjected(err) {
		t.Fatalf("IsInjected(%v)=true, want false", err)
	}

	if IsInjected(nil) {
		t.Fatal("IsInjected(nil)=true")
	}
}

func TestFaulty_FailN_ClearsItselfAfterN(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "db.json")

	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	fsys := NewFaulty(NewReal())
	fsys.FailN(OpRead, path, 2, syscall.EACCES)

	for i := range 2 {
		if _, err := fsys.ReadFile(path); !errors.Is(err, syscall.EACCES) {
			t.Fatalf("read %d err=%v, want EACCES", i, err)
		}
	}

	if _, err := fsys.ReadFile(path); err != nil {
		t.Fatalf("third read: %v", err)
	}
}
