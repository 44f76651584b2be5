package agent

import (
	"sync"
	"time"

	"github.com/mindhaven/signaling/internal/models"
)

// Timer mirrors the host-authoritative meditation timer. On the host it
// is the source of truth; on other participants it only transitions in
// response to received broadcasts. Remaining time is derived from a
// monotonic clock so pause/resume never loses elapsed time.
type Timer struct {
	mu              sync.Mutex
	phase           models.TimerPhase
	durationSeconds int
	countdownStep   int

	// remainingAt is the remaining seconds at the moment of the last
	// transition; transitionAt is when that transition happened.
	remainingAt  float64
	transitionAt time.Time

	now func() time.Time // injectable for tests
}

// NewTimer creates an idle timer for the given meditation length.
func NewTimer(durationMinutes int) *Timer {
	seconds := durationMinutes * 60
	return &Timer{
		phase:           models.TimerIdle,
		durationSeconds: seconds,
		remainingAt:     float64(seconds),
		now:             time.Now,
	}
}

// SetClock replaces the timer's clock. Test hook.
func (t *Timer) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Seed applies the registry's last-known timer state, adjusting a running
// countdown for the time elapsed since the host recorded it. Used by late
// joiners so they do not sit idle until the next broadcast.
func (t *Timer) Seed(ts models.TimerState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ts.DurationSeconds > 0 {
		t.durationSeconds = ts.DurationSeconds
	}
	remaining := float64(ts.RemainingSeconds)
	if ts.Phase == models.TimerRunning && ts.UpdatedAt > 0 {
		elapsed := float64(t.now().UnixMilli()-ts.UpdatedAt) / 1000
		remaining -= elapsed
	}
	if remaining < 0 {
		remaining = 0
	}

	t.phase = ts.Phase
	if t.phase == models.TimerRunning && remaining == 0 {
		t.phase = models.TimerCompleted
	}
	t.remainingAt = remaining
	t.transitionAt = t.now()
}

// Countdown records one step of the host's 3-2-1 pre-start countdown.
func (t *Timer) Countdown(step int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = models.TimerCountdown
	t.countdownStep = step
}

// Start begins the countdown from the full duration.
func (t *Timer) Start(durationSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if durationSeconds > 0 {
		t.durationSeconds = durationSeconds
	}
	t.phase = models.TimerRunning
	t.remainingAt = float64(t.durationSeconds)
	t.transitionAt = t.now()
}

// Pause freezes the countdown, keeping the remaining time.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != models.TimerRunning {
		return
	}
	t.remainingAt = t.remainingLocked()
	t.phase = models.TimerPaused
	t.transitionAt = t.now()
}

// Resume continues a paused countdown from where it stopped.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != models.TimerPaused {
		return
	}
	t.phase = models.TimerRunning
	t.transitionAt = t.now()
}

// Reset returns the timer to idle at the full duration.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = models.TimerIdle
	t.remainingAt = float64(t.durationSeconds)
	t.transitionAt = t.now()
}

// Phase returns the current phase, folding an expired running countdown
// into completed.
func (t *Timer) Phase() models.TimerPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == models.TimerRunning && t.remainingLocked() <= 0 {
		t.phase = models.TimerCompleted
		t.remainingAt = 0
	}
	return t.phase
}

// Remaining returns the remaining whole seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.remainingLocked()
	if r < 0 {
		r = 0
	}
	return int(r + 0.5)
}

// Duration returns the configured meditation length in seconds.
func (t *Timer) Duration() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durationSeconds
}

// CountdownStep returns the most recent pre-start countdown step.
func (t *Timer) CountdownStep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countdownStep
}

// State snapshots the timer for a broadcast payload.
func (t *Timer) State() models.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.remainingLocked()
	if r < 0 {
		r = 0
	}
	return models.TimerState{
		Phase:            t.phase,
		DurationSeconds:  t.durationSeconds,
		RemainingSeconds: int(r + 0.5),
		UpdatedAt:        t.now().UnixMilli(),
	}
}

// remainingLocked computes remaining seconds. Caller holds t.mu.
func (t *Timer) remainingLocked() float64 {
	if t.phase != models.TimerRunning {
		return t.remainingAt
	}
	elapsed := t.now().Sub(t.transitionAt).Seconds()
	return t.remainingAt - elapsed
}
