package timer

import (
	"sync"
	"testing"
	"time"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticker := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers = append(c.tickers, ticker)
	return ticker
}

func (c *fakeClock) latest() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[len(c.tickers)-1]
}

type recorder struct {
	mu      sync.Mutex
	ticks   []int
	low     []int
	expires int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnTick: func(remaining int) {
			r.mu.Lock()
			r.ticks = append(r.ticks, remaining)
			r.mu.Unlock()
		},
		OnLowTime: func(remaining int) {
			r.mu.Lock()
			r.low = append(r.low, remaining)
			r.mu.Unlock()
		},
		OnExpire: func() {
			r.mu.Lock()
			r.expires++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]int, []int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...), append([]int(nil), r.low...), r.expires
}

func newManualCountdown(initial int, rec *recorder) (*Countdown, *fakeClock) {
	clock := &fakeClock{}
	return NewCountdown(initial, rec.callbacks(), WithClock(clock)), clock
}

func TestCountdownTicksWithoutExpiring(t *testing.T) {
	rec := &recorder{}
	countdown, _ := newManualCountdown(60, rec)
	countdown.Start()
	defer countdown.Pause()

	countdown.Tick()
	countdown.Tick()

	if got := countdown.Remaining(); got != 58 {
		t.Fatalf("remaining = %d, want 58", got)
	}
	ticks, _, expires := rec.snapshot()
	if expires != 0 {
		t.Fatalf("expiry fired early")
	}
	if len(ticks) != 2 || ticks[1] != 58 {
		t.Fatalf("unexpected ticks: %v", ticks)
	}
}

func TestCountdownExpiresExactlyOnce(t *testing.T) {
	rec := &recorder{}
	countdown, _ := newManualCountdown(2, rec)
	countdown.Start()

	countdown.Tick()
	countdown.Tick()
	countdown.Tick()

	_, _, expires := rec.snapshot()
	if expires != 1 {
		t.Fatalf("expires = %d, want 1", expires)
	}
	if countdown.Remaining() != 0 || countdown.Running() || !countdown.Expired() {
		t.Fatalf("unexpected state after expiry: remaining=%d running=%t", countdown.Remaining(), countdown.Running())
	}

	countdown.Start()
	if _, _, expires := rec.snapshot(); expires != 1 {
		t.Fatalf("restart after expiry fired again: %d", expires)
	}
}

func TestCountdownStartingAtZeroExpiresImmediately(t *testing.T) {
	rec := &recorder{}
	countdown, clock := newManualCountdown(0, rec)
	countdown.Start()

	if _, _, expires := rec.snapshot(); expires != 1 {
		t.Fatalf("expires = %d, want 1", expires)
	}
	if len(clock.tickers) != 0 {
		t.Fatalf("expired countdown must not start a ticker")
	}
}

func TestCountdownLowTimeFiresOnceOnDownwardCrossing(t *testing.T) {
	rec := &recorder{}
	countdown, _ := newManualCountdown(302, rec)
	countdown.Start()
	defer countdown.Pause()

	for idx := 0; idx < 4; idx++ {
		countdown.Tick()
	}

	_, low, _ := rec.snapshot()
	if len(low) != 1 || low[0] != 300 {
		t.Fatalf("low-time callbacks = %v, want [300]", low)
	}
}

func TestCountdownResumeBelowThresholdSkipsLowTime(t *testing.T) {
	rec := &recorder{}
	countdown, _ := newManualCountdown(900, rec)
	countdown.Resume(250)
	defer countdown.Pause()

	countdown.Tick()

	_, low, _ := rec.snapshot()
	if len(low) != 0 {
		t.Fatalf("low-time must not fire when already below threshold, got %v", low)
	}
	if countdown.Remaining() != 249 {
		t.Fatalf("remaining = %d, want 249", countdown.Remaining())
	}
}

func TestCountdownPausePreservesRemaining(t *testing.T) {
	rec := &recorder{}
	countdown, _ := newManualCountdown(10, rec)
	countdown.Start()
	countdown.Tick()
	countdown.Pause()

	countdown.Tick()
	countdown.Tick()
	if countdown.Remaining() != 9 || countdown.Running() {
		t.Fatalf("paused countdown moved: remaining=%d running=%t", countdown.Remaining(), countdown.Running())
	}

	countdown.Resume(countdown.Remaining())
	defer countdown.Pause()
	countdown.Tick()
	if countdown.Remaining() != 8 {
		t.Fatalf("remaining after resume = %d, want 8", countdown.Remaining())
	}
}

func TestCountdownDrivenByTicker(t *testing.T) {
	ticked := make(chan int, 4)
	expired := make(chan struct{})
	clock := &fakeClock{}
	countdown := NewCountdown(2, Callbacks{
		OnTick:   func(remaining int) { ticked <- remaining },
		OnExpire: func() { close(expired) },
	}, WithClock(clock))

	countdown.Start()
	ticker := clock.latest()

	ticker.ch <- time.Now()
	if got := <-ticked; got != 1 {
		t.Fatalf("first tick = %d, want 1", got)
	}
	ticker.ch <- time.Now()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected expiry after second tick")
	}
	select {
	case <-ticker.stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected ticker to be stopped after expiry")
	}
}

func TestCountdownCallbackMayPause(t *testing.T) {
	var countdown *Countdown
	countdown = NewCountdown(301, Callbacks{
		OnLowTime: func(int) { countdown.Pause() },
	}, WithClock(&fakeClock{}))
	countdown.Start()

	countdown.Tick()
	if countdown.Running() {
		t.Fatalf("expected callback to pause the countdown")
	}
}

func TestCountdownRealClockExpires(t *testing.T) {
	expired := make(chan struct{})
	countdown := NewCountdown(3, Callbacks{OnExpire: func() { close(expired) }}, WithInterval(time.Millisecond))
	countdown.Start()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown did not expire")
	}
}
