package proctor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newCounting(maxWarnings int, countdown time.Duration) (*Monitor, *int32) {
	var calls int32
	m := New(maxWarnings, countdown, func() { atomic.AddInt32(&calls, 1) }, zerolog.Nop())
	return m, &calls
}

func TestThreeViolationsDoNotForce(t *testing.T) {
	m, calls := newCounting(3, time.Hour)

	for i := 1; i <= 3; i++ {
		warnings, forced := m.Violation()
		m.Return() // student comes back before the countdown elapses
		if forced {
			t.Fatalf("violation %d must not force submission", i)
		}
		if warnings != i {
			t.Errorf("warning count after violation %d = %d", i, warnings)
		}
	}

	if atomic.LoadInt32(calls) != 0 {
		t.Errorf("finalize called %d times, want 0", *calls)
	}
}

func TestFourthViolationForcesExactlyOnce(t *testing.T) {
	m, calls := newCounting(3, time.Hour)

	for i := 0; i < 3; i++ {
		m.Violation()
		m.Return()
	}

	warnings, forced := m.Violation()
	if !forced || warnings != 4 {
		t.Fatalf("4th violation: warnings=%d forced=%v, want 4/true", warnings, forced)
	}

	// Monitor is disarmed: further events are no-ops.
	if _, forced := m.Violation(); forced {
		t.Error("violation after disarm must be a no-op")
	}
	m.Return()

	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("finalize called %d times, want exactly 1", got)
	}
}

func TestCountdownExpiryForces(t *testing.T) {
	m, calls := newCounting(3, 10*time.Millisecond)

	m.Violation()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("finalize called %d times after countdown, want 1", got)
	}

	// Expired monitor ignores later violations.
	if _, forced := m.Violation(); forced {
		t.Error("violation after expiry must be a no-op")
	}
}

func TestReturnCancelsCountdown(t *testing.T) {
	m, calls := newCounting(3, 20*time.Millisecond)

	m.Violation()
	m.Return()

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(calls); got != 0 {
		t.Errorf("finalize called %d times after cancelled countdown, want 0", got)
	}
	if m.Warnings() != 1 {
		t.Errorf("Return must not reset the warning counter, got %d", m.Warnings())
	}
}

func TestNewViolationRestartsSingleCountdown(t *testing.T) {
	m, calls := newCounting(5, 30*time.Millisecond)

	// Back-to-back violations without returns: the second must replace the
	// first countdown, not stack a duplicate.
	m.Violation()
	time.Sleep(15 * time.Millisecond)
	m.Violation()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // room for a duplicate timer to misfire

	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("finalize called %d times, want exactly 1", got)
	}
}

func TestDisarmDropsPendingCountdown(t *testing.T) {
	m, calls := newCounting(3, 10*time.Millisecond)

	m.Violation()
	m.Disarm()

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(calls); got != 0 {
		t.Errorf("finalize called %d times after disarm, want 0", got)
	}
}

func TestConcurrentEventsSingleFinalize(t *testing.T) {
	m, calls := newCounting(3, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Violation()
		}()
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("finalize called %d times under concurrent violations, want exactly 1", got)
	}
}
