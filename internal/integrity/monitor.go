// Package integrity watches the exam environment for signals that the
// student left the exam or tried to copy content, and reports them as
// violations. It never decides consequences.
package integrity

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type Kind string

const (
	KindTabSwitch      Kind = "tab_switch"
	KindBlur           Kind = "blur"
	KindFullscreenExit Kind = "fullscreen_exit"
	KindCopy           Kind = "copy_attempt"
	KindCut            Kind = "cut_attempt"
	KindPaste          Kind = "paste_attempt"
	KindContextMenu    Kind = "context_menu"
)

var ErrAlreadyAttached = errors.New("integrity source already attached")

type Event struct {
	Kind   Kind
	At     time.Time
	Detail string
}

// Source delivers environment events to a single handler between Attach
// and the returned detach call.
type Source interface {
	Attach(handler func(Event)) (detach func(), err error)
}

// FullscreenRequester is implemented by sources that can ask the
// environment to enter fullscreen.
type FullscreenRequester interface {
	RequestFullscreen() error
}

type Activity struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

type Config struct {
	// Strict escalates copy attempts to violations.
	Strict      bool
	OnViolation func(kind Kind, count int)
}

// Monitor counts events per kind while enabled. Tab switches and fullscreen
// exits always invoke OnViolation; copy attempts do so only in strict mode.
// Focus loss, cut, paste and context-menu events are tallied silently.
type Monitor struct {
	mu       sync.Mutex
	source   Source
	cfg      Config
	enabled  bool
	detach   func()
	counts   map[Kind]int
	activity []Activity
	now      func() time.Time
}

func NewMonitor(source Source, cfg Config) *Monitor {
	return &Monitor{
		source: source,
		cfg:    cfg,
		counts: make(map[Kind]int),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enable attaches to the source. Calling it while enabled is a no-op.
func (m *Monitor) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled {
		return nil
	}
	if m.source == nil {
		m.enabled = true
		return nil
	}
	detach, err := m.source.Attach(m.handle)
	if err != nil {
		return fmt.Errorf("attach integrity source: %w", err)
	}
	m.detach = detach
	m.enabled = true
	return nil
}

// Disable detaches from the source. Events that race with Disable are dropped.
func (m *Monitor) Disable() {
	m.mu.Lock()
	detach := m.detach
	m.detach = nil
	m.enabled = false
	m.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Monitor) RequestFullscreen() error {
	requester, ok := m.source.(FullscreenRequester)
	if !ok {
		return nil
	}
	return requester.RequestFullscreen()
}

func (m *Monitor) handle(event Event) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	if event.At.IsZero() {
		event.At = m.now()
	}
	m.counts[event.Kind]++
	count := m.counts[event.Kind]
	m.activity = append(m.activity, Activity{Kind: event.Kind, At: event.At})
	report := m.isViolation(event.Kind)
	callback := m.cfg.OnViolation
	m.mu.Unlock()

	if report && callback != nil {
		callback(event.Kind, count)
	}
}

func (m *Monitor) isViolation(kind Kind) bool {
	switch kind {
	case KindTabSwitch, KindFullscreenExit:
		return true
	case KindCopy:
		return m.cfg.Strict
	default:
		return false
	}
}

func (m *Monitor) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[kind]
}

// Tallies returns the per-kind counters keyed by kind name.
func (m *Monitor) Tallies() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.counts))
	for kind, count := range m.counts {
		out[string(kind)] = count
	}
	return out
}

func (m *Monitor) Activity() []Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Activity(nil), m.activity...)
}

func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[Kind]int)
	m.activity = nil
}
