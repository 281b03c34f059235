package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"exam-app/internal/exam"
	"exam-app/internal/integrity"
	"exam-app/internal/recovery"
	"exam-app/internal/timer"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type updateCall struct {
	attemptID string
	patch     exam.AttemptPatch
}

type fakePersistence struct {
	mu  sync.Mutex
	log *eventLog

	createID    string
	createErr   error
	createCalls int

	updateErr error
	updates   []updateCall
	updated   chan struct{}

	finalizeErr   error
	finalizeCalls int
	finalized     []exam.Finalization
	// finalizeGate, when set, blocks FinalizeAttempt until it is closed.
	finalizeGate    chan struct{}
	finalizeEntered chan struct{}
}

func newFakePersistence(log *eventLog) *fakePersistence {
	return &fakePersistence{log: log, createID: "a1", updated: make(chan struct{}, 64)}
}

func (f *fakePersistence) CreateAttempt(_ context.Context, testID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.log.add("create")
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakePersistence) UpdateAttempt(_ context.Context, attemptID string, patch exam.AttemptPatch) error {
	f.mu.Lock()
	f.updates = append(f.updates, updateCall{attemptID: attemptID, patch: patch})
	err := f.updateErr
	f.mu.Unlock()

	f.log.add("update")
	select {
	case f.updated <- struct{}{}:
	default:
	}
	return err
}

func (f *fakePersistence) FinalizeAttempt(_ context.Context, attemptID string, final exam.Finalization) (exam.Attempt, error) {
	f.mu.Lock()
	f.finalizeCalls++
	gate := f.finalizeGate
	entered := f.finalizeEntered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("finalize")
	if f.finalizeErr != nil {
		return exam.Attempt{}, f.finalizeErr
	}
	f.finalized = append(f.finalized, final)

	result := final.Result
	submitted := time.Unix(1700000600, 0).UTC()
	return exam.Attempt{
		ID:                   attemptID,
		Answers:              final.Answers,
		Status:               exam.StatusCompleted,
		TimeRemainingSeconds: final.TimeRemainingSeconds,
		WarningCount:         final.WarningCount,
		SubmittedAt:          &submitted,
		Result:               &result,
		Proctoring:           final.Proctoring,
	}, nil
}

func (f *fakePersistence) updateCalls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updates...)
}

func (f *fakePersistence) finalizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalizeCalls
}

func (f *fakePersistence) setUpdateErr(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

func (f *fakePersistence) setFinalizeErr(err error) {
	f.mu.Lock()
	f.finalizeErr = err
	f.mu.Unlock()
}

type recordingStore struct {
	*recovery.MemoryStore
	log *eventLog
}

func (s recordingStore) Save(record recovery.Record) error {
	s.log.add("save")
	return s.MemoryStore.Save(record)
}

type idleTicker struct {
	ch chan time.Time
}

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

// idleClock hands out tickers that never fire; tests drive time by hand.
type idleClock struct{}

func (idleClock) NewTicker(time.Duration) timer.Ticker {
	return idleTicker{ch: make(chan time.Time)}
}

type manualClock struct {
	mu      sync.Mutex
	tickers []idleTicker
	created chan struct{}
}

func newManualClock() *manualClock {
	return &manualClock{created: make(chan struct{}, 8)}
}

func (c *manualClock) NewTicker(time.Duration) timer.Ticker {
	ticker := idleTicker{ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, ticker)
	c.mu.Unlock()
	c.created <- struct{}{}
	return ticker
}

type harness struct {
	log         *eventLog
	persistence *fakePersistence
	store       recordingStore
	feed        *integrity.Feed

	mu        sync.Mutex
	notices   []Notice
	completed []exam.Attempt
	cancels   int
}

func newHarness() *harness {
	log := &eventLog{}
	return &harness{
		log:         log,
		persistence: newFakePersistence(log),
		store:       recordingStore{MemoryStore: recovery.NewMemoryStore(), log: log},
		feed:        integrity.NewFeed(),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Persistence: h.persistence,
		Recovery:    h.store,
		Source:      h.feed,
		Clock:       idleClock{},
		Now:         func() time.Time { return time.Unix(1700000000, 0).UTC() },
		OnComplete: func(attempt exam.Attempt) {
			h.mu.Lock()
			h.completed = append(h.completed, attempt)
			h.mu.Unlock()
		},
		OnCancel: func() {
			h.mu.Lock()
			h.cancels++
			h.mu.Unlock()
		},
		OnNotice: func(notice Notice) {
			h.mu.Lock()
			h.notices = append(h.notices, notice)
			h.mu.Unlock()
		},
	}
}

func (h *harness) noticeKinds() []NoticeKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	kinds := make([]NoticeKind, 0, len(h.notices))
	for _, notice := range h.notices {
		kinds = append(kinds, notice.Kind)
	}
	return kinds
}

func (h *harness) completions() []exam.Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]exam.Attempt(nil), h.completed...)
}

func (h *harness) open(t *testing.T, cfg Config) *Controller {
	t.Helper()
	controller, err := Open(context.Background(), cfg, h.deps())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = controller.Pause(context.Background()) })
	return controller
}

// sampleTest has two 2-mark questions and a ten minute limit.
func sampleTest() exam.Test {
	return exam.Test{
		ID:               "t1",
		Title:            "Sample",
		TimeLimitMinutes: 10,
		Questions: []exam.Question{
			{ID: "q1", Prompt: "one", Correct: exam.AnswerA, Marks: 2},
			{ID: "q2", Prompt: "two", Correct: exam.AnswerB, Marks: 2},
		},
	}
}

func sampleConfig() Config {
	return Config{Test: sampleTest(), StudentID: "alice", StudentName: "Alice", StrictIntegrity: true}
}

func hasKind(kinds []NoticeKind, want NoticeKind) bool {
	for _, kind := range kinds {
		if kind == want {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
