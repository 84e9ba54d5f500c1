package otp

import (
	"sync"
	"time"
)

// TickerFunc returns a channel that ticks every d and a function that stops it.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// RealTicker wraps time.NewTicker.
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Countdown decrements once per second until it reaches zero or is stopped.
type Countdown struct {
	newTicker TickerFunc

	mu        sync.Mutex
	remaining int
	stop      chan struct{}
}

func NewCountdown(newTicker TickerFunc) *Countdown {
	if newTicker == nil {
		newTicker = RealTicker
	}
	return &Countdown{newTicker: newTicker}
}

// Start restarts the countdown at seconds, replacing a running one.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = seconds
	if seconds <= 0 {
		c.remaining = 0
		return
	}

	stop := make(chan struct{})
	c.stop = stop
	ticks, stopTicker := c.newTicker(time.Second)
	go c.run(ticks, stopTicker, stop)
}

func (c *Countdown) run(ticks <-chan time.Time, stopTicker func(), stop chan struct{}) {
	defer stopTicker()
	for {
		select {
		case <-stop:
			return
		case <-ticks:
			c.mu.Lock()
			if c.stop != stop {
				c.mu.Unlock()
				return
			}
			c.remaining--
			done := c.remaining <= 0
			if done {
				c.remaining = 0
				c.stop = nil
			}
			c.mu.Unlock()
			if done {
				return
			}
		}
	}
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop cancels the countdown, keeping the current remaining value.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
