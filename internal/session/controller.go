// Package session runs one student's timed attempt at one test: it
// reconciles recovered state, owns the answer map, keeps the local recovery
// record ahead of every remote write and guarantees a single finalize.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"exam-app/internal/exam"
	"exam-app/internal/integrity"
	"exam-app/internal/recovery"
	"exam-app/internal/timer"
)

const (
	// DefaultWarningThreshold is the number of warnings tolerated before an
	// automatic submission.
	DefaultWarningThreshold = 2
	// DefaultSyncInterval is the period of the background remote sync.
	DefaultSyncInterval = 10 * time.Second
)

var (
	ErrStartFailed       = errors.New("exam session could not be started")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrNotActive         = errors.New("exam session is not active")
	ErrNotReady          = errors.New("exam session is not waiting to begin")
	ErrUnknownQuestion   = errors.New("question is not part of this test")
	ErrMissingDependency = errors.New("session dependency missing")
	ErrTimeExpired       = errors.New("time is up; the exam can only be submitted")
)

// State is the controller's lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateInstructions
	StateActive
	StatePaused
	StateSubmitting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInstructions:
		return "instructions"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateSubmitting:
		return "submitting"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Persistence is the remote attempt store as seen by the controller.
type Persistence interface {
	CreateAttempt(ctx context.Context, testID string) (string, error)
	UpdateAttempt(ctx context.Context, attemptID string, patch exam.AttemptPatch) error
	FinalizeAttempt(ctx context.Context, attemptID string, final exam.Finalization) (exam.Attempt, error)
}

// Config describes the attempt a controller runs.
type Config struct {
	Test        exam.Test
	StudentID   string
	StudentName string
	// Existing is the caller's view of the student's active remote attempt.
	Existing         *exam.Attempt
	WarningThreshold int
	SyncInterval     time.Duration
	StrictIntegrity  bool
}

// Deps are the collaborators a controller drives. Persistence and Recovery
// are required; the callbacks are optional.
type Deps struct {
	Persistence Persistence
	Recovery    recovery.Store
	// Source feeds the integrity monitor. Nil observes nothing.
	Source integrity.Source
	Clock  timer.Clock
	Now    func() time.Time

	OnComplete func(exam.Attempt)
	OnCancel   func()
	OnNotice   func(Notice)
	OnTick     func(remaining int)
}

// Controller is safe for concurrent use. Timer, integrity and sync events
// arrive on their own goroutines and serialize on mu.
type Controller struct {
	cfg  Config
	deps Deps
	ctx  context.Context

	countdown *timer.Countdown
	monitor   *integrity.Monitor
	order     []exam.Question
	questions map[string]struct{}

	mu         sync.Mutex
	state      State
	attemptID  string
	answers    map[string]exam.Answer
	flagged    map[string]bool
	warnings   int
	submitting bool
	syncStop   chan struct{}
	final      *exam.Attempt
	// confirmed is set once the remote store has accepted this attempt as
	// open. Until then a recovered attempt id is only the local record's word.
	confirmed bool
	done       chan struct{}
	doneOnce   sync.Once
}

// Open reconciles local and remote state and either parks the controller in
// Instructions or resumes straight into Active. A failed attempt creation
// is fatal and wrapped in ErrStartFailed.
func Open(ctx context.Context, cfg Config, deps Deps) (*Controller, error) {
	if deps.Persistence == nil || deps.Recovery == nil {
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, ErrMissingDependency)
	}
	if strings.TrimSpace(cfg.StudentID) == "" {
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, exam.ErrAuthRequired)
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if deps.Clock == nil {
		deps.Clock = timer.SystemClock()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}

	existing := cfg.Existing
	if existing != nil && (existing.TestID != cfg.Test.ID || existing.StudentID != cfg.StudentID) {
		log.Warn().Str("attempt_id", existing.ID).Msg("ignoring existing attempt for another test or student")
		existing = nil
	}

	local, err := deps.Recovery.Load(cfg.Test.ID, cfg.StudentID)
	if err != nil {
		log.Warn().Err(err).Str("test_id", cfg.Test.ID).Msg("local recovery record unreadable")
		local = nil
	}

	hydrated := Reconcile(local, existing, cfg.Test.LimitSeconds())

	created := false
	if hydrated.AttemptID == "" {
		attemptID, err := createAttempt(ctx, cfg, deps)
		if err != nil {
			return nil, err
		}
		hydrated.AttemptID = attemptID
		created = true
	}

	c := newController(ctx, cfg, deps, hydrated)
	c.confirmed = created || hydrated.Origin == OriginRemote || (existing != nil && existing.ID == hydrated.AttemptID)

	if !hydrated.Resume {
		c.mu.Lock()
		c.state = StateInstructions
		c.mu.Unlock()
		return c, nil
	}

	if err := c.resume(ctx, hydrated); errors.Is(err, exam.ErrAttemptCompleted) {
		log.Warn().Str("attempt_id", hydrated.AttemptID).Msg("local recovery record belongs to a finished attempt")
		if err := deps.Recovery.Clear(cfg.Test.ID, cfg.StudentID); err != nil {
			log.Warn().Err(err).Str("test_id", cfg.Test.ID).Msg("local recovery clear failed")
		}
		fresh := Reconcile(nil, nil, cfg.Test.LimitSeconds())
		attemptID, err := createAttempt(ctx, cfg, deps)
		if err != nil {
			return nil, err
		}
		fresh.AttemptID = attemptID

		c = newController(ctx, cfg, deps, fresh)
		c.confirmed = true
		c.state = StateInstructions
	}
	return c, nil
}

func createAttempt(ctx context.Context, cfg Config, deps Deps) (string, error) {
	attemptID, err := deps.Persistence.CreateAttempt(ctx, cfg.Test.ID)
	if err != nil {
		log.Error().Err(err).Str("test_id", cfg.Test.ID).Msg("attempt creation failed")
		return "", fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	return attemptID, nil
}

func newController(ctx context.Context, cfg Config, deps Deps, hydrated Hydrated) *Controller {
	c := &Controller{
		cfg:       cfg,
		deps:      deps,
		ctx:       context.WithoutCancel(ctx),
		order:     questionOrder(cfg.Test, hydrated.AttemptID),
		questions: make(map[string]struct{}, len(cfg.Test.Questions)),
		state:     StateUninitialized,
		attemptID: hydrated.AttemptID,
		answers:   hydrated.Answers,
		flagged:   make(map[string]bool, len(hydrated.Flagged)),
		warnings:  hydrated.WarningCount,
		done:      make(chan struct{}),
	}
	for _, question := range cfg.Test.Questions {
		c.questions[question.ID] = struct{}{}
	}
	for _, id := range hydrated.Flagged {
		c.flagged[id] = true
	}

	c.countdown = timer.NewCountdown(hydrated.TimeRemaining, timer.Callbacks{
		OnTick:    c.onTick,
		OnLowTime: c.onLowTime,
		OnExpire:  c.onExpire,
	}, timer.WithClock(deps.Clock))

	c.monitor = integrity.NewMonitor(deps.Source, integrity.Config{
		Strict:      cfg.StrictIntegrity,
		OnViolation: c.onViolation,
	})
	return c
}

// resume enters Active without instructions. The local record is written
// before the remote update that carries any interruption warning. A remote
// store reporting the attempt as completed stops the resume and the error
// is returned to the caller.
func (c *Controller) resume(ctx context.Context, hydrated Hydrated) error {
	c.mu.Lock()
	_ = c.saveLocalLocked(false)
	attemptID := c.attemptID
	warnings := c.warnings
	c.mu.Unlock()

	status := exam.StatusInProgress
	patch := exam.AttemptPatch{Status: &status}
	if hydrated.Interrupted {
		patch.WarningCount = &warnings
	}
	err := c.deps.Persistence.UpdateAttempt(ctx, attemptID, patch)
	switch {
	case errors.Is(err, exam.ErrAttemptCompleted):
		return err
	case err != nil:
		log.Warn().Err(err).Str("attempt_id", attemptID).Msg("resume update failed")
	default:
		c.markConfirmed()
	}

	if hydrated.Interrupted {
		log.Info().Str("attempt_id", attemptID).Int("warning_count", warnings).Msg("interruption detected")
		c.notify(Notice{Kind: NoticeInterruption, WarningCount: warnings, Message: interruptionMessage(warnings, c.cfg.WarningThreshold)})
	}

	c.mu.Lock()
	c.state = StateActive
	c.mu.Unlock()
	c.activate()

	if warnings > c.cfg.WarningThreshold {
		c.autoSubmit(ctx, "too many interruptions")
	}
	return nil
}

func (c *Controller) markConfirmed() {
	c.mu.Lock()
	c.confirmed = true
	c.mu.Unlock()
}

// Begin confirms the instructions and starts the exam.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInstructions {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.state = StateActive
	if err := c.saveLocalLocked(false); err != nil {
		c.state = StateInstructions
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := c.monitor.RequestFullscreen(); err != nil {
		log.Warn().Err(err).Msg("fullscreen request failed")
	}

	c.activate()

	log.Info().Str("attempt_id", c.AttemptID()).Str("test_id", c.cfg.Test.ID).Msg("exam started")
	return nil
}

// activate attaches the monitor, periodic sync and timer to Active. The
// countdown starts outside the lock because a countdown at zero expires
// synchronously into Submit.
func (c *Controller) activate() {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	if err := c.monitor.Enable(); err != nil {
		log.Warn().Err(err).Msg("integrity monitor unavailable")
	}
	c.startSyncLocked()
	c.mu.Unlock()

	c.countdown.Start()

	c.mu.Lock()
	if c.state != StateActive {
		c.countdown.Pause()
	}
	c.mu.Unlock()
}

// stopLocked detaches everything activate attached.
func (c *Controller) stopLocked() {
	c.countdown.Pause()
	c.monitor.Disable()
	c.stopSyncLocked()
}

func (c *Controller) startSyncLocked() {
	if c.syncStop != nil {
		return
	}
	stop := make(chan struct{})
	c.syncStop = stop
	ticker := c.deps.Clock.NewTicker(c.cfg.SyncInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				c.SyncNow(c.ctx)
			}
		}
	}()
}

func (c *Controller) stopSyncLocked() {
	if c.syncStop == nil {
		return
	}
	close(c.syncStop)
	c.syncStop = nil
}

// saveLocalLocked rewrites the full recovery record.
func (c *Controller) saveLocalLocked(paused bool) error {
	record := recovery.Record{
		TestID:        c.cfg.Test.ID,
		StudentID:     c.cfg.StudentID,
		AttemptID:     c.attemptID,
		Answers:       exam.CloneAnswers(c.answers),
		Flagged:       c.flaggedLocked(),
		TimeRemaining: c.countdown.Remaining(),
		WarningCount:  c.warnings,
		Paused:        paused,
		SavedAt:       c.deps.Now(),
	}
	if err := c.deps.Recovery.Save(record); err != nil {
		log.Error().Err(err).Str("attempt_id", c.attemptID).Msg("local recovery write failed")
		return fmt.Errorf("save recovery record: %w", err)
	}
	return nil
}

func (c *Controller) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Controller) notify(notice Notice) {
	if c.deps.OnNotice != nil {
		c.deps.OnNotice(notice)
	}
}

// Done is closed once the controller leaves for good, by pause or by a
// successful submission.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AttemptID returns the remote attempt this controller writes to.
func (c *Controller) AttemptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptID
}

func (c *Controller) Test() exam.Test {
	return c.cfg.Test
}

// Questions returns the presentation order.
func (c *Controller) Questions() []exam.Question {
	return append([]exam.Question(nil), c.order...)
}

// Final returns the finalized attempt once the controller is Terminated.
func (c *Controller) Final() (exam.Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil {
		return exam.Attempt{}, false
	}
	return *c.final, true
}
