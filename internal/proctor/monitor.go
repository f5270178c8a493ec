// Package proctor implements the supervisory watchdog that runs for the
// duration of one in-progress attempt. It observes secure-mode transitions
// reported by the client, escalates through a bounded warning sequence, and
// forces submission when the warning ceiling is exceeded or a countdown runs
// out before the student returns to secure mode.
package proctor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxWarnings is the violation ceiling; the violation after it
	// forces submission immediately.
	DefaultMaxWarnings = 3
	// DefaultCountdown is how long a student may stay out of secure mode
	// before the attempt is force-submitted.
	DefaultCountdown = 10 * time.Second
)

// Monitor tracks violations for a single attempt. State is owned by the
// instance, never ambient: one Monitor per attempt, destroyed with it.
// All methods are safe for concurrent use — the countdown timer fires on its
// own goroutine and races the event stream.
type Monitor struct {
	mu          sync.Mutex
	warnings    int
	maxWarnings int
	countdown   time.Duration
	timer       *time.Timer
	disarmed    bool
	finalize    func()
	log         zerolog.Logger
}

// New creates a Monitor that invokes finalize at most once, on whichever
// trigger path fires first. finalize runs outside the monitor's lock.
func New(maxWarnings int, countdown time.Duration, finalize func(), log zerolog.Logger) *Monitor {
	if maxWarnings <= 0 {
		maxWarnings = DefaultMaxWarnings
	}
	if countdown <= 0 {
		countdown = DefaultCountdown
	}
	return &Monitor{
		maxWarnings: maxWarnings,
		countdown:   countdown,
		finalize:    finalize,
		log:         log.With().Str("component", "proctor_monitor").Logger(),
	}
}

// Violation records one "exited secure mode" transition. It returns the
// cumulative warning count and whether this violation forced submission.
// Below the ceiling it (re)starts the countdown; only one countdown is ever
// live, so a new violation first cancels any pending timer.
func (m *Monitor) Violation() (warnings int, forced bool) {
	m.mu.Lock()
	if m.disarmed {
		n := m.warnings
		m.mu.Unlock()
		return n, false
	}

	m.warnings++
	warnings = m.warnings

	if m.warnings > m.maxWarnings {
		fn := m.disarmLocked()
		m.mu.Unlock()
		m.log.Warn().Int("warnings", warnings).Msg("Warning ceiling exceeded, forcing submission")
		if fn != nil {
			fn()
		}
		return warnings, true
	}

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.countdown, m.expire)
	m.mu.Unlock()
	return warnings, false
}

// Return records a "returned to secure mode" transition. It cancels any
// pending countdown but never resets the warning counter — violations are
// cumulative for the life of the attempt.
func (m *Monitor) Return() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disarmed {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Disarm permanently stops the monitor; further events are no-ops. Called
// when the attempt ends for any reason (submit, disconnect, forced finalize).
func (m *Monitor) Disarm() {
	m.mu.Lock()
	m.disarmLocked()
	m.mu.Unlock()
}

// Warnings returns the cumulative violation count.
func (m *Monitor) Warnings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warnings
}

// expire fires when the countdown elapses without a Return.
func (m *Monitor) expire() {
	m.mu.Lock()
	if m.disarmed {
		m.mu.Unlock()
		return
	}
	fn := m.disarmLocked()
	m.mu.Unlock()

	m.log.Warn().Msg("Secure-mode countdown elapsed, forcing submission")
	if fn != nil {
		fn()
	}
}

// disarmLocked marks the monitor dead and hands back the finalize callback
// exactly once. Caller holds the lock and must invoke the callback after
// releasing it — finalize is not re-entrant-safe against concurrent triggers.
func (m *Monitor) disarmLocked() func() {
	if m.disarmed {
		return nil
	}
	m.disarmed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	fn := m.finalize
	m.finalize = nil
	return fn
}
