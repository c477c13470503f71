package oautherr

import (
	"context"
	"sync"
	"time"
)

// Phase is the state of a Countdown.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCountdownRunning
	PhaseRetrying
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCountdownRunning:
		return "countdown_running"
	case PhaseRetrying:
		return "retrying"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Countdown drives the automatic retry of a classified error: a fixed number
// of ticks, after which the retry fires. It can only be cancelled through the
// context passed to Run.
type Countdown struct {
	ticks    int
	interval time.Duration

	mu        sync.Mutex
	phase     Phase
	remaining int
	autoRetry bool
}

func NewCountdown(ticks int, interval time.Duration) *Countdown {
	return &Countdown{
		ticks:     ticks,
		interval:  interval,
		remaining: ticks,
	}
}

// ResumeCountdown rebuilds the countdown of cl with remaining ticks left, as
// observed by a request other than the one running it.
func ResumeCountdown(cl Classification, remaining int) *Countdown {
	c := &Countdown{
		remaining: max(remaining, 0),
		autoRetry: cl.AutoRetry,
	}
	if c.autoRetry && c.remaining > 0 {
		c.phase = PhaseCountdownRunning
	}

	return c
}

// Run counts down for an auto-retry eligible classification and reports
// whether the retry should fire. onTick receives the remaining seconds after
// every tick. Errors that are not eligible leave the countdown idle.
func (c *Countdown) Run(ctx context.Context, cl Classification, onTick func(remaining int)) (bool, error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return false, nil
	}

	c.autoRetry = cl.AutoRetry
	if !cl.AutoRetry {
		c.mu.Unlock()
		return false, nil
	}

	c.phase = PhaseCountdownRunning
	c.mu.Unlock()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for c.Remaining() > 0 {
		select {
		case <-ctx.Done():
			c.transition(PhaseDone)
			return false, ctx.Err()
		case <-ticker.C:
			c.mu.Lock()
			c.remaining--
			remaining := c.remaining
			c.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
		}
	}

	c.transition(PhaseRetrying)

	return true, nil
}

// CanRetryManually reports whether the "retry now" action is available.
func (c *Countdown) CanRetryManually() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.phase != PhaseDone && (!c.autoRetry || c.remaining == 0)
}

// Finish marks the retry as performed.
func (c *Countdown) Finish() {
	c.transition(PhaseDone)
}

func (c *Countdown) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.phase
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.remaining
}

func (c *Countdown) transition(to Phase) {
	c.mu.Lock()
	c.phase = to
	c.mu.Unlock()
}
