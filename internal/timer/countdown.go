// Package timer provides the one-second exam countdown.
package timer

import (
	"sync"
	"time"
)

// LowTimeThreshold is the remaining-seconds mark that triggers the one-time
// low-time warning when crossed going downward.
const LowTimeThreshold = 300

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// SystemClock returns the wall-clock Clock.
func SystemClock() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t realTicker) C() <-chan time.Time { return t.ticker.C }
func (t realTicker) Stop()               { t.ticker.Stop() }

// Callbacks run outside the countdown's lock, so they may call back into it.
type Callbacks struct {
	OnTick    func(remaining int)
	OnLowTime func(remaining int)
	OnExpire  func()
}

type Option func(*Countdown)

func WithClock(clock Clock) Option {
	return func(c *Countdown) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

// Countdown decrements once per interval while running. It fires OnLowTime
// at most once when remaining crosses LowTimeThreshold downward and OnExpire
// exactly once when remaining reaches zero, after which it stops itself.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	running   bool
	lowFired  bool
	expired   bool
	gen       uint64
	stop      chan struct{}

	cb       Callbacks
	clock    Clock
	interval time.Duration
}

func NewCountdown(initial int, cb Callbacks, opts ...Option) *Countdown {
	if initial < 0 {
		initial = 0
	}
	c := &Countdown{
		remaining: initial,
		lowFired:  initial <= LowTimeThreshold,
		cb:        cb,
		clock:     realClock{},
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

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

func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Start begins ticking from the current remaining value. A countdown that
// starts at zero expires immediately.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.running || c.expired {
		c.mu.Unlock()
		return
	}
	if c.remaining == 0 {
		c.expired = true
		c.mu.Unlock()
		c.fireExpire()
		return
	}

	c.running = true
	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	c.stop = stop
	ticker := c.clock.NewTicker(c.interval)
	c.mu.Unlock()

	go c.loop(gen, ticker, stop)
}

// Pause stops ticking and keeps the remaining value. It does not wait for
// the ticking goroutine, so it is safe to call from a callback.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haltLocked()
}

// Resume restarts the countdown from an arbitrary remaining value.
func (c *Countdown) Resume(remaining int) {
	if remaining < 0 {
		remaining = 0
	}

	c.mu.Lock()
	c.haltLocked()
	c.remaining = remaining
	if remaining > 0 {
		c.expired = false
	}
	c.lowFired = remaining <= LowTimeThreshold
	c.mu.Unlock()

	c.Start()
}

// Tick advances one second if the countdown is running.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.tickLocked()
}

func (c *Countdown) loop(gen uint64, ticker Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			c.mu.Lock()
			if !c.running || c.gen != gen {
				c.mu.Unlock()
				return
			}
			c.tickLocked()
		}
	}
}

// tickLocked is entered with c.mu held and releases it before callbacks.
func (c *Countdown) tickLocked() {
	prev := c.remaining
	next := prev - 1
	if next < 0 {
		next = 0
	}
	c.remaining = next

	fireLow := !c.lowFired && prev > LowTimeThreshold && next <= LowTimeThreshold
	if fireLow {
		c.lowFired = true
	}
	fireExpire := next == 0 && !c.expired
	if fireExpire {
		c.expired = true
		c.haltLocked()
	}
	c.mu.Unlock()

	if c.cb.OnTick != nil {
		c.cb.OnTick(next)
	}
	if fireLow && c.cb.OnLowTime != nil {
		c.cb.OnLowTime(next)
	}
	if fireExpire {
		c.fireExpire()
	}
}

func (c *Countdown) haltLocked() {
	if !c.running {
		return
	}
	c.running = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) fireExpire() {
	if c.cb.OnExpire != nil {
		c.cb.OnExpire()
	}
}
