// Package clock implements the countdown that meters a conversation
// session. It owns no business logic: it decrements once per interval and
// reports expiry exactly once per run.
package clock

import (
	"sync"
	"time"
)

type Countdown struct {
	mu        sync.Mutex
	interval  time.Duration
	remaining int
	running   bool
	gen       int
	stop      chan struct{}
	onTick    func(remaining int)
	onExpired func()
}

// New creates a countdown ticking once per second.
func New(onTick func(remaining int), onExpired func()) *Countdown {
	return NewWithInterval(time.Second, onTick, onExpired)
}

// NewWithInterval is New with a custom tick interval.
func NewWithInterval(interval time.Duration, onTick func(remaining int), onExpired func()) *Countdown {
	return &Countdown{interval: interval, onTick: onTick, onExpired: onExpired}
}

// Start begins counting down from initialSeconds. A countdown already
// running is stopped first; its goroutine can never emit again. Starting
// from zero (or less) emits expired immediately.
func (c *Countdown) Start(initialSeconds int) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if initialSeconds < 0 {
		initialSeconds = 0
	}
	c.remaining = initialSeconds
	if initialSeconds == 0 {
		c.running = false
		c.mu.Unlock()
		if c.onExpired != nil {
			c.onExpired()
		}
		return
	}
	c.running = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()
	go c.run(gen, stop)
}

// Stop cancels the countdown. Safe to call multiple times and while
// already stopped. No expired event is emitted.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Expire stops the countdown and pins the remaining time at zero without
// emitting an expired event. Used when the server, not the clock, declares
// the session over.
func (c *Countdown) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = 0
}

func (c *Countdown) stopLocked() {
	c.gen++
	c.running = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Remaining returns the seconds left. Never negative.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) run(gen int, stop chan struct{}) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			rem, expired, live := c.tick(gen)
			if !live {
				return
			}
			if c.onTick != nil {
				c.onTick(rem)
			}
			if expired {
				if c.onExpired != nil {
					c.onExpired()
				}
				return
			}
		}
	}
}

// tick performs one decrement. The generation guard makes a superseded run
// inert even if its ticker already fired.
func (c *Countdown) tick(gen int) (remaining int, expired, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || gen != c.gen {
		return 0, false, false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.running = false
		if c.stop != nil {
			// run() is the only reader and it is past the select; closing
			// here just releases the channel for the next Start.
			close(c.stop)
			c.stop = nil
		}
		return 0, true, true
	}
	return c.remaining, false, true
}
