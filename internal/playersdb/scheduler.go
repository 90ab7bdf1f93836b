package playersdb

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Priority is the urgency of a pending write.
type Priority int

// Priorities in increasing urgency. [PriorityNone] means nothing is pending
// and is not a valid flag.
const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityNone:
		return "none"
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p may be used to flag a write.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// ParsePriority parses "low", "medium" (or "med") and "high".
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium", "med":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return PriorityNone, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Thresholds is how long each pending priority may dwell since the last
// successful flush before a tick flushes it. High always flushes on the next
// tick regardless of its threshold; its value only sets the default tick
// cadence.
type Thresholds struct {
	None   time.Duration
	Low    time.Duration
	Medium time.Duration
	High   time.Duration
}

// DefaultThresholds returns the standard dwell times. Each carries a ~2s
// margin for ticker skew. With nothing pending the file is still rewritten
// every five minutes.
func DefaultThresholds() Thresholds {
	return Thresholds{
		None:   300 * time.Second,
		Low:    300 * time.Second,
		Medium: 58 * time.Second,
		High:   28 * time.Second,
	}
}

// For returns the dwell time for p.
func (t Thresholds) For(p Priority) time.Duration {
	switch p {
	case PriorityLow:
		return t.Low
	case PriorityMedium:
		return t.Medium
	case PriorityHigh:
		return t.High
	default:
		return t.None
	}
}

// Decision is the outcome of a scheduler tick.
type Decision int

const (
	Skip Decision = iota
	Flush
)

func (d Decision) String() string {
	if d == Flush {
		return "flush"
	}

	return "skip"
}

// Ticket records one in-flight flush started by [Scheduler.Begin].
type Ticket struct {
	// Priority is the pending priority the flush covers.
	Priority  Priority
	StartedAt time.Time
}

// Scheduler tracks the pending write priority and the last successful write.
//
// Pending only rises between flushes. A flush is bracketed by Begin and
// Complete (or Abort); raises that happen while a flush is in flight are not
// covered by it and stay pending after Complete.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu          sync.Mutex
	thresholds  Thresholds
	pending     Priority
	lastWriteAt time.Time

	inFlight bool
	// raisedInFlight is the highest priority raised since Begin.
	raisedInFlight Priority
}

// NewScheduler returns a scheduler with nothing pending whose last write is
// lastWriteAt.
func NewScheduler(thresholds Thresholds, lastWriteAt time.Time) *Scheduler {
	return &Scheduler{
		thresholds:  thresholds,
		lastWriteAt: lastWriteAt,
	}
}

// Raise sets pending to max(pending, p). Returns true if pending changed.
// Fails with [ErrInvalidPriority] if p is not Low, Medium or High.
func (s *Scheduler) Raise(p Priority) (bool, error) {
	if !p.Valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		s.raisedInFlight = max(s.raisedInFlight, p)
	}

	if p <= s.pending {
		return false, nil
	}

	s.pending = p

	return true, nil
}

// Decide reports whether a tick at now should flush: pending is High, or the
// time since the last successful write exceeds the pending threshold.
func (s *Scheduler) Decide(now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == PriorityHigh || now.Sub(s.lastWriteAt) > s.thresholds.For(s.pending) {
		return Flush
	}

	return Skip
}

// Begin marks a flush as started at now and returns its ticket.
func (s *Scheduler) Begin(now time.Time) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = true
	s.raisedInFlight = PriorityNone

	return Ticket{Priority: s.pending, StartedAt: now}
}

// Complete records a successful flush: the last write becomes the ticket's
// start time and pending drops to whatever was raised during the flush.
func (s *Scheduler) Complete(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = s.raisedInFlight
	s.lastWriteAt = t.StartedAt
	s.inFlight = false
	s.raisedInFlight = PriorityNone
}

// Abort records a failed flush. Pending and the last write are unchanged so
// the next tick retries with the same urgency.
func (s *Scheduler) Abort(Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	s.raisedInFlight = PriorityNone
}

// Reset clears pending and sets the last write to now.
func (s *Scheduler) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = PriorityNone
	s.lastWriteAt = now
}

// Pending returns the current pending priority.
func (s *Scheduler) Pending() Priority {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending
}

// LastWriteAt returns the start time of the last successful flush.
func (s *Scheduler) LastWriteAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastWriteAt
}
