package teleop

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// FrequencyTimer paces a loop at a fixed rate. Overrun iterations are not
// compensated: the next one simply starts immediately.
type FrequencyTimer struct {
	clock  clock.Clock
	period time.Duration
	start  time.Time
}

// NewFrequencyTimer returns a timer for hz iterations per second.
// A nil clock uses the wall clock.
func NewFrequencyTimer(hz float64, clk clock.Clock) *FrequencyTimer {
	if clk == nil {
		clk = clock.New()
	}
	return &FrequencyTimer{
		clock:  clk,
		period: time.Duration(float64(time.Second) / hz),
	}
}

// Period returns the loop period.
func (t *FrequencyTimer) Period() time.Duration {
	return t.period
}

// StartLoop marks the start of an iteration.
func (t *FrequencyTimer) StartLoop() {
	t.start = t.clock.Now()
}

// Remaining returns how long the current iteration still has to wait, or zero
// when it already overran.
func (t *FrequencyTimer) Remaining() time.Duration {
	left := t.period - t.clock.Since(t.start)
	if left < 0 {
		return 0
	}
	return left
}

// EndLoop sleeps for the rest of the period. It returns ctx.Err() if the
// context is cancelled while sleeping.
func (t *FrequencyTimer) EndLoop(ctx context.Context) error {
	wait := t.Remaining()
	if wait == 0 {
		return ctx.Err()
	}
	timer := t.clock.Timer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
