package fs

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
)

// Op identifies an [FS] operation for fault injection.
type Op uint8

const (
	OpRead Op = iota + 1
	OpWrite
	OpMkdir
	OpStat
	OpRemove
	OpLock
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpMkdir:
		return "mkdir"
	case OpStat:
		return "stat"
	case OpRemove:
		return "remove"
	case OpLock:
		return "lock"
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Faulty wraps an [FS] and fails selected operations on selected paths.
//
// Faults are sticky until cleared: a path marked with [Faulty.Fail] keeps
// failing with the given error for that operation. This makes tests like
// "primary file unreadable, backup fine" deterministic.
//
// Injected errors are [InjectedError] values wrapping the configured cause,
// so errors.Is(err, syscall.EIO) and [IsInjected] both work.
type Faulty struct {
	fs FS

	mu     sync.Mutex
	faults map[faultKey]*fault

	injected atomic.Int64
}

type faultKey struct {
	op   Op
	path string
}

type fault struct {
	cause error
	// remaining counts down to removal; zero means sticky.
	remaining int
}

// NewFaulty creates a Faulty filesystem wrapping fs.
func NewFaulty(fs FS) *Faulty {
	return &Faulty{
		fs:     fs,
		faults: make(map[faultKey]*fault),
	}
}

// Fail makes op on path return cause until [Faulty.Clear] is called.
// A nil cause defaults to EIO.
func (f *Faulty) Fail(op Op, path string, cause error) {
	f.FailN(op, path, 0, cause)
}

// FailN makes the next n calls of op on path return cause, after which the
// fault clears itself. n <= 0 behaves like [Faulty.Fail].
func (f *Faulty) FailN(op Op, path string, n int, cause error) {
	if cause == nil {
		cause = syscall.EIO
	}

	f.mu.Lock()
	f.faults[faultKey{op: op, path: filepath.Clean(path)}] = &fault{cause: cause, remaining: max(n, 0)}
	f.mu.Unlock()
}

// Clear removes the fault for op on path.
func (f *Faulty) Clear(op Op, path string) {
	f.mu.Lock()
	delete(f.faults, faultKey{op: op, path: filepath.Clean(path)})
	f.mu.Unlock()
}

// ClearAll removes every configured fault.
func (f *Faulty) ClearAll() {
	f.mu.Lock()
	clear(f.faults)
	f.mu.Unlock()
}

// Injected returns how many operations failed because of a configured fault.
func (f *Faulty) Injected() int64 {
	return f.injected.Load()
}

func (f *Faulty) check(op Op, path string) error {
	key := faultKey{op: op, path: filepath.Clean(path)}

	f.mu.Lock()

	flt, ok := f.faults[key]
	if ok && flt.remaining > 0 {
		flt.remaining--
		if flt.remaining == 0 {
			delete(f.faults, key)
		}
	}

	f.mu.Unlock()

	if !ok {
		return nil
	}

	f.injected.Add(1)

	return &InjectedError{Op: op, Path: path, Err: flt.cause}
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpRead, path); err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWrite, path); err != nil {
		return err
	}

	return f.fs.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdir, path); err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpStat, path); err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.fs.Remove(path)
}

func (f *Faulty) Lock(path string) (Locker, error) {
	if err := f.check(OpLock, path); err != nil {
		return nil, err
	}

	return f.fs.Lock(path)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
