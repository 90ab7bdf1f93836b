package playersdb

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestScheduler_HighFlushesOnNextTick(t *testing.T) {
	t.Parallel()

	s := NewScheduler(DefaultThresholds(), epoch)

	changed, err := s.Raise(PriorityHigh)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, Flush, s.Decide(epoch))
}

func TestScheduler_DwellTimes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raise   Priority
		elapsed time.Duration
		want    Decision
	}{
		{name: "none before five minutes", raise: PriorityNone, elapsed: 299 * time.Second, want: Skip},
		{name: "none at threshold", raise: PriorityNone, elapsed: 300 * time.Second, want: Skip},
		{name: "none after five minutes", raise: PriorityNone, elapsed: 301 * time.Second, want: Flush},
		{name: "low after one tick", raise: PriorityLow, elapsed: 28 * time.Second, want: Skip},
		{name: "low after five minutes", raise: PriorityLow, elapsed: 301 * time.Second, want: Flush},
		{name: "medium early", raise: PriorityMedium, elapsed: 56 * time.Second, want: Skip},
		{name: "medium due", raise: PriorityMedium, elapsed: 59 * time.Second, want: Flush},
		{name: "high immediately", raise: PriorityHigh, elapsed: 0, want: Flush},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := NewScheduler(DefaultThresholds(), epoch)
			if tc.raise != PriorityNone {
				_, err := s.Raise(tc.raise)
				require.NoError(t, err)
			}

			assert.Equal(t, tc.want, s.Decide(epoch.Add(tc.elapsed)))
		})
	}
}

func TestScheduler_RaiseOnlyGoesUp(t *testing.T) {
	t.Parallel()

	s := NewScheduler(DefaultThresholds(), epoch)

	changed, err := s.Raise(PriorityMedium)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Raise(PriorityLow)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, PriorityMedium, s.Pending())

	changed, err = s.Raise(PriorityMedium)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestScheduler_RejectsInvalidPriority(t *testing.T) {
	t.Parallel()

	s := NewScheduler(DefaultThresholds(), epoch)

	for _, p := range []Priority{PriorityNone, Priority(-1), Priority(4)} {
		_, err := s.Raise(p)
		require.ErrorIs(t, err, ErrInvalidPriority, "priority %d", int(p))
	}

	assert.Equal(t, PriorityNone, s.Pending())
}

func TestScheduler_CompleteClearsPendingAndMovesLastWrite(t *testing.T) {
	t.Parallel()

	s := NewScheduler(DefaultThresholds(), epoch)
	_, _ = s.Raise(PriorityHigh)

	at := epoch.Add(5 * time.Second)
	ticket := s.Begin(at)
	assert.Equal(t, PriorityHigh, ticket.Priority)

	s.Complete(ticket)

	assert.Equal(t, PriorityNone, s.Pending())
	assert.Equal(t, at, s.LastWriteAt())
	assert.Equal(t, Skip, s.Decide(at.Add(28*time.Second)))
}

func TestScheduler_RaiseDuringFlushStaysPending(t *testing.T) {
	t.Parallel()

	s := NewScheduler(DefaultThresholds(), epoch)
	_, _ = s.Raise(PriorityLow)

	ticket := s.Begin(epoch)

	// Lower than pending: not a change now, but not covered by this flush.
	changed, err := s.Raise(PriorityLow)
	require.NoError(t, err)
	assert.False(t, changed)

	s.Complete(ticket)

	assert.Equal(t, PriorityLow, s.Pending())
}

func TestScheduler_AbortKeepsState(t *testing.T) {
	t.Parallel()

	s := NewScheduler(DefaultThresholds(), epoch)
	_, _ = s.Raise(PriorityMedium)

	ticket := s.Begin(epoch.Add(time.Minute))
	s.Abort(ticket)

	assert.Equal(t, PriorityMedium, s.Pending())
	assert.Equal(t, epoch, s.LastWriteAt())
	assert.Equal(t, Flush, s.Decide(epoch.Add(time.Minute)))
}

func TestScheduler_Reset(t *testing.T) {
	t.Parallel()

	s := NewScheduler(DefaultThresholds(), epoch)
	_, _ = s.Raise(PriorityHigh)

	now := epoch.Add(time.Hour)
	s.Reset(now)

	assert.Equal(t, PriorityNone, s.Pending())
	assert.Equal(t, now, s.LastWriteAt())
}

// Drives random raises and 28s ticks and checks that every flush covers
// exactly the highest priority raised since the previous flush.
func TestScheduler_RandomRaisesAndTicks(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	th := DefaultThresholds()
	s := NewScheduler(th, epoch)

	now := epoch
	lastFlush := epoch
	maxSince := PriorityNone

	for tick := range 5000 {
		for range rng.IntN(3) {
			p := Priority(1 + rng.IntN(3))
			_, err := s.Raise(p)
			require.NoError(t, err)

			maxSince = max(maxSince, p)
		}

		now = now.Add(28 * time.Second)

		wantFlush := maxSince == PriorityHigh || now.Sub(lastFlush) > th.For(maxSince)

		decision := s.Decide(now)
		require.Equal(t, wantFlush, decision == Flush, "tick %d", tick)

		if decision == Skip {
			continue
		}

		ticket := s.Begin(now)
		require.Equal(t, maxSince, ticket.Priority, "tick %d", tick)
		s.Complete(ticket)

		// A second decision on the same tick never flushes again.
		require.Equal(t, Skip, s.Decide(now), "tick %d", tick)

		lastFlush = now
		maxSince = PriorityNone
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{in: "low", want: PriorityLow},
		{in: "Medium", want: PriorityMedium},
		{in: "med", want: PriorityMedium},
		{in: " HIGH ", want: PriorityHigh},
		{in: "none", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParsePriority(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrInvalidPriority, "input %q", tc.in)

			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) Priority {
	t.Helper()

	p, err := ParsePriority(s)
	require.NoError(t, err)

	return p
}
