package integrity

import (
	"sync"
	"time"
)

// Feed is a Source driven by code: front-ends that observe the environment
// themselves push events into it with Emit.
type Feed struct {
	mu                 sync.Mutex
	handler            func(Event)
	gen                uint64
	fullscreenRequests int
}

func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) Attach(handler func(Event)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handler != nil {
		return nil, ErrAlreadyAttached
	}
	f.gen++
	gen := f.gen
	f.handler = handler

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.gen == gen {
			f.handler = nil
		}
	}, nil
}

// Emit delivers an event and reports whether a handler was attached.
func (f *Feed) Emit(kind Kind) bool {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(Event{Kind: kind, At: time.Now().UTC()})
	return true
}

func (f *Feed) Attached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

func (f *Feed) RequestFullscreen() error {
	f.mu.Lock()
	f.fullscreenRequests++
	f.mu.Unlock()
	return nil
}

func (f *Feed) FullscreenRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullscreenRequests
}
