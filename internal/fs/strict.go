package fs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// TestBuilder is the subset of [testing.T] used by [Strict].
//
// This keeps [Strict] usable from tests in other packages without
// depending on _test.go files.
type TestBuilder interface {
	// [testing.T.Helper]
	Helper()
	// [testing.T.Cleanup]
	Cleanup(func())
	// [testing.T.Failed]
	Failed() bool
	// [testing.T.Logf]
	Logf(format string, args ...any)
	// [testing.T.Errorf]
	Errorf(format string, args ...any)
}

// Strict wraps an [FS] for tests:
//   - Records a bounded trace of recent operations
//   - Fails the test on any real filesystem error other than a missing file
//     or a held lock
//
// Put it above a [Faulty] so injected failures are traced but tolerated.
// Failures are reported with Errorf, so Strict may be used from goroutines.
type Strict struct {
	tb    TestBuilder
	fs    FS
	trace *traceLog
}

// NewStrict wraps fsys. On test failure the trace of recent operations is
// logged via tb.Cleanup.
func NewStrict(tb TestBuilder, fsys FS) *Strict {
	tb.Helper()

	s := &Strict{
		tb:    tb,
		fs:    fsys,
		trace: newTraceLog(defaultTraceCapacity),
	}

	tb.Cleanup(func() {
		if tb.Failed() {
			if trace := s.Trace(); trace != "" {
				tb.Logf("fs trace:\n%s", trace)
			}
		}
	})

	return s
}

// Trace returns a formatted string of recent operations.
func (s *Strict) Trace() string {
	return s.trace.String()
}

func (s *Strict) ReadFile(path string) ([]byte, error) {
	data, err := s.fs.ReadFile(path)

	return data, s.check(OpRead, path, err, attr("n", strconv.Itoa(len(data))))
}

func (s *Strict) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return s.check(OpWrite, path, s.fs.WriteFileAtomic(path, data, perm),
		attr("n", strconv.Itoa(len(data))), attr("perm", fmt.Sprintf("%#o", perm)))
}

func (s *Strict) MkdirAll(path string, perm os.FileMode) error {
	return s.check(OpMkdir, path, s.fs.MkdirAll(path, perm), attr("perm", fmt.Sprintf("%#o", perm)))
}

func (s *Strict) Stat(path string) (os.FileInfo, error) {
	info, err := s.fs.Stat(path)

	return info, s.check(OpStat, path, err)
}

func (s *Strict) Exists(path string) (bool, error) {
	exists, err := s.fs.Exists(path)

	return exists, s.check(OpStat, path, err, attr("exists", strconv.FormatBool(exists)))
}

func (s *Strict) Remove(path string) error {
	return s.check(OpRemove, path, s.fs.Remove(path))
}

func (s *Strict) Lock(path string) (Locker, error) {
	l, err := s.fs.Lock(path)

	return l, s.check(OpLock, path, err)
}

var _ FS = (*Strict)(nil)

// check traces the operation and reports unexpected real errors.
func (s *Strict) check(op Op, path string, err error, attrs ...kv) error {
	s.trace.add(op, path, err, attrs...)

	if err == nil || IsInjected(err) || errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrWouldBlock) {
		return err
	}

	trace := s.Trace()
	if trace != "" {
		trace = "\n" + trace
	}

	s.tb.Errorf("strict fs: underlying filesystem error: %v%s", err, trace)

	return err
}

const defaultTraceCapacity = 200

// kv is a key-value pair for trace context.
type kv struct {
	k string
	v string
}

func attr(k, v string) kv {
	return kv{k: k, v: v}
}

type traceEvent struct {
	seq   uint64
	op    Op
	path  string
	err   error
	attrs []kv
}

func (e traceEvent) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "#%d %s path=%q", e.seq, e.op, e.path)

	for _, a := range e.attrs {
		fmt.Fprintf(&b, " %s=%s", a.k, a.v)
	}

	if e.err == nil {
		b.WriteString(" ok")

		return b.String()
	}

	fmt.Fprintf(&b, " err=%v injected=%t", e.err, IsInjected(e.err))

	return b.String()
}

// traceLog is a bounded ring of [traceEvent].
type traceLog struct {
	mu       sync.Mutex
	capacity int
	events   []traceEvent
	next     int
	seq      uint64
}

func newTraceLog(capacity int) *traceLog {
	return &traceLog{
		capacity: capacity,
		events:   make([]traceEvent, 0, capacity),
	}
}

func (t *traceLog) add(op Op, path string, err error, attrs ...kv) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++

	event := traceEvent{seq: t.seq, op: op, path: path, err: err, attrs: attrs}

	if len(t.events) < t.capacity {
		t.events = append(t.events, event)

		return
	}

	t.events[t.next] = event
	t.next = (t.next + 1) % t.capacity
}

func (t *traceLog) String() string {
	t.mu.Lock()
	events := append(append([]traceEvent(nil), t.events[t.next:]...), t.events[:t.next]...)
	t.mu.Unlock()

	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = e.String()
	}

	return strings.Join(lines, "\n")
}
