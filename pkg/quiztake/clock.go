package quiztake

import (
	"sync"
	"time"
)

// Countdown decrements once per second while an attempt is active and fires
// a one-shot expiry at zero. It never fires after Stop, and never fires
// early.
type Countdown struct {
	onTick   func(remaining time.Duration)
	onExpire func()

	mu        sync.Mutex
	remaining time.Duration
	stopped   bool
	cancel    CancelFunc
}

func startCountdown(sched Scheduler, remaining time.Duration, onTick func(time.Duration), onExpire func()) *Countdown {
	c := &Countdown{
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: remaining,
	}
	c.cancel = sched.Every(time.Second, c.tick)
	return c
}

func (c *Countdown) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.remaining -= time.Second
	rem := c.remaining
	expired := rem <= 0
	if expired {
		rem = 0
		c.remaining = 0
		c.stopped = true
	}
	cancel := c.cancel
	c.mu.Unlock()

	if expired {
		if cancel != nil {
			cancel()
		}
		c.onExpire()
		return
	}
	c.onTick(rem)
}

// Remaining reports the seconds left, floored at zero.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop cancels the countdown. Idempotent; expiry will not fire afterwards.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
