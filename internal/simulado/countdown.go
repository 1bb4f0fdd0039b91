package simulado

import (
	"sync"
	"time"
)

// Countdown ticks down from a number of seconds and calls onExpire once when
// it reaches zero. A stopped countdown never fires.
type Countdown struct {
	interval time.Duration
	onExpire func()

	mu        sync.Mutex
	remaining int
	stopOnce  sync.Once
	stop      chan struct{}
}

func NewCountdown(seconds int, interval time.Duration, onExpire func()) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{interval: interval, onExpire: onExpire, remaining: seconds, stop: make(chan struct{})}
}

func (c *Countdown) Start() { go c.run() }

// Stop does not wait for the ticking goroutine, so it is safe to call from
// onExpire.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) run() {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
		}
		c.mu.Lock()
		if c.remaining > 0 {
			c.remaining--
		}
		expired := c.remaining == 0
		c.mu.Unlock()
		if !expired {
			continue
		}
		select {
		case <-c.stop:
		default:
			c.onExpire()
		}
		return
	}
}
