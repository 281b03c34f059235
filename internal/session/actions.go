package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"exam-app/internal/exam"
	"exam-app/internal/integrity"
)

// Answer selects an option. Selecting the current choice again clears it.
func (c *Controller) Answer(questionID string, option exam.Answer) error {
	choice := exam.NormalizeAnswer(string(option))
	if !choice.IsSet() {
		return exam.ErrInvalidAnswer
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editableLocked(questionID); err != nil {
		return err
	}
	if c.answers[questionID] == choice {
		c.answers[questionID] = exam.AnswerUnset
	} else {
		c.answers[questionID] = choice
	}
	return c.saveLocalLocked(false)
}

// Clear records an explicit unset for the question.
func (c *Controller) Clear(questionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editableLocked(questionID); err != nil {
		return err
	}
	c.answers[questionID] = exam.AnswerUnset
	return c.saveLocalLocked(false)
}

// ToggleFlag marks or unmarks a question for review.
func (c *Controller) ToggleFlag(questionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editableLocked(questionID); err != nil {
		return err
	}
	if c.flagged[questionID] {
		delete(c.flagged, questionID)
	} else {
		c.flagged[questionID] = true
	}
	return c.saveLocalLocked(false)
}

func (c *Controller) editableLocked(questionID string) error {
	if c.state != StateActive || c.submitting {
		return ErrNotActive
	}
	if c.countdown.Expired() {
		return ErrTimeExpired
	}
	if _, ok := c.questions[questionID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	return nil
}

// SyncNow pushes answers and remaining time to the remote store. Failures
// are logged and dropped; the next tick retries.
func (c *Controller) SyncNow(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateActive || c.submitting {
		c.mu.Unlock()
		return
	}
	answers := exam.CloneAnswers(c.answers)
	remaining := c.countdown.Remaining()
	attemptID := c.attemptID
	c.mu.Unlock()

	patch := exam.AttemptPatch{
		Answers:              answers,
		TimeRemainingSeconds: &remaining,
	}
	if err := c.deps.Persistence.UpdateAttempt(ctx, attemptID, patch); err != nil {
		log.Warn().Err(err).Str("attempt_id", attemptID).Msg("periodic sync failed")
		return
	}
	c.markConfirmed()
}

// Pause persists the current state with status paused and hands control
// back through OnCancel. If the remote write fails the session stays Active.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive || c.submitting {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.state = StatePaused
	c.stopLocked()
	_ = c.saveLocalLocked(false)
	answers := exam.CloneAnswers(c.answers)
	remaining := c.countdown.Remaining()
	warnings := c.warnings
	attemptID := c.attemptID
	c.mu.Unlock()

	status := exam.StatusPaused
	patch := exam.AttemptPatch{
		Answers:              answers,
		Status:               &status,
		TimeRemainingSeconds: &remaining,
		WarningCount:         &warnings,
	}
	if err := c.deps.Persistence.UpdateAttempt(ctx, attemptID, patch); err != nil {
		log.Error().Err(err).Str("attempt_id", attemptID).Msg("pause failed")
		c.mu.Lock()
		c.state = StateActive
		c.mu.Unlock()
		c.activate()
		c.notify(Notice{Kind: NoticePauseFailed, Message: "Could not pause the exam. Check your connection and try again."})
		return fmt.Errorf("pause attempt: %w", err)
	}

	c.mu.Lock()
	c.confirmed = true
	_ = c.saveLocalLocked(true)
	c.mu.Unlock()

	c.finish()
	log.Info().Str("attempt_id", attemptID).Int("time_remaining", remaining).Msg("exam paused")
	if c.deps.OnCancel != nil {
		c.deps.OnCancel()
	}
	return nil
}

// Submit grades and finalizes the attempt. Only one submission runs at a
// time; a concurrent call returns ErrSubmitInProgress without effect. A
// failed finalize returns the session to Active with all answers intact.
// A remote store that already holds the attempt as completed counts as
// success only for an attempt it has confirmed open during this session.
func (c *Controller) Submit(ctx context.Context) error {
	return c.submit(ctx, "student")
}

func (c *Controller) autoSubmit(ctx context.Context, reason string) {
	c.notify(Notice{Kind: NoticeAutoSubmit, Message: "The exam is being submitted automatically: " + reason + "."})
	err := c.submit(ctx, reason)
	if err != nil && !errors.Is(err, ErrSubmitInProgress) && !errors.Is(err, ErrNotActive) {
		log.Error().Err(err).Str("reason", reason).Msg("automatic submission failed")
	}
}

func (c *Controller) submit(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.submitting = true
	c.state = StateSubmitting
	c.stopLocked()
	answers := exam.CloneAnswers(c.answers)
	remaining := c.countdown.Remaining()
	warnings := c.warnings
	attemptID := c.attemptID
	confirmed := c.confirmed
	c.mu.Unlock()

	if len(answers) == 0 {
		answers = c.recoverAnswers()
	}

	final := exam.Finalization{
		Answers:              answers,
		TimeRemainingSeconds: remaining,
		WarningCount:         warnings,
		Result:               exam.Score(answers, c.cfg.Test, remaining),
		Proctoring:           c.monitor.Tallies(),
	}

	attempt, err := c.deps.Persistence.FinalizeAttempt(ctx, attemptID, final)
	if errors.Is(err, exam.ErrAttemptCompleted) && confirmed {
		log.Warn().Str("attempt_id", attemptID).Msg("attempt already finalized remotely")
		attempt, err = c.localFinal(attemptID, final), nil
	}
	if err != nil {
		log.Error().Err(err).Str("attempt_id", attemptID).Str("reason", reason).Msg("finalize failed")
		c.mu.Lock()
		c.submitting = false
		c.state = StateActive
		c.mu.Unlock()
		c.activate()
		c.notify(Notice{Kind: NoticeSubmitFailed, Message: "Failed to submit the exam. Your answers are saved; try again."})
		return fmt.Errorf("finalize attempt: %w", err)
	}

	if err := c.deps.Recovery.Clear(c.cfg.Test.ID, c.cfg.StudentID); err != nil {
		log.Warn().Err(err).Str("attempt_id", attemptID).Msg("local recovery clear failed")
	}

	c.mu.Lock()
	c.state = StateTerminated
	c.submitting = false
	c.final = &attempt
	c.mu.Unlock()
	c.finish()

	log.Info().
		Str("attempt_id", attemptID).
		Str("reason", reason).
		Float64("score", final.Result.Score).
		Float64("max_score", final.Result.MaxScore).
		Msg("exam submitted")

	if c.deps.OnComplete != nil {
		c.deps.OnComplete(attempt)
	}
	return nil
}

// recoverAnswers reads the local record when the in-memory map is empty.
// An empty or unreadable record grades as no answers.
func (c *Controller) recoverAnswers() map[string]exam.Answer {
	record, err := c.deps.Recovery.Load(c.cfg.Test.ID, c.cfg.StudentID)
	if err != nil {
		log.Error().Err(err).Msg("local recovery read failed at submit")
		return map[string]exam.Answer{}
	}
	if record == nil || len(record.Answers) == 0 {
		return map[string]exam.Answer{}
	}
	log.Warn().Int("answers", len(record.Answers)).Msg("answers recovered from local record at submit")
	return exam.CloneAnswers(record.Answers)
}

func (c *Controller) localFinal(attemptID string, final exam.Finalization) exam.Attempt {
	now := c.deps.Now()
	result := final.Result
	return exam.Attempt{
		ID:                   attemptID,
		TestID:               c.cfg.Test.ID,
		StudentID:            c.cfg.StudentID,
		StudentName:          c.cfg.StudentName,
		Answers:              final.Answers,
		Status:               exam.StatusCompleted,
		TimeRemainingSeconds: final.TimeRemainingSeconds,
		WarningCount:         final.WarningCount,
		LastUpdated:          now,
		SubmittedAt:          &now,
		Result:               &result,
		Proctoring:           final.Proctoring,
	}
}

func (c *Controller) onTick(remaining int) {
	c.mu.Lock()
	if c.state == StateActive && !c.submitting {
		_ = c.saveLocalLocked(false)
	}
	c.mu.Unlock()

	if c.deps.OnTick != nil {
		c.deps.OnTick(remaining)
	}
}

func (c *Controller) onLowTime(remaining int) {
	c.notify(Notice{Kind: NoticeLowTime, Message: fmt.Sprintf("Only %d minutes remaining.", remaining/60)})
}

func (c *Controller) onExpire() {
	c.notify(Notice{Kind: NoticeTimeUp, Message: "Time is up."})
	c.autoSubmit(c.ctx, "time expired")
}

// onViolation escalates an integrity event into a warning. Crossing the
// threshold submits on the same call.
func (c *Controller) onViolation(kind integrity.Kind, count int) {
	c.mu.Lock()
	if c.state != StateActive || c.submitting {
		c.mu.Unlock()
		return
	}
	c.warnings++
	warnings := c.warnings
	attemptID := c.attemptID
	_ = c.saveLocalLocked(false)
	c.mu.Unlock()

	log.Warn().
		Str("attempt_id", attemptID).
		Str("kind", string(kind)).
		Int("kind_count", count).
		Int("warning_count", warnings).
		Msg("integrity violation")

	if err := c.deps.Persistence.UpdateAttempt(c.ctx, attemptID, exam.AttemptPatch{WarningCount: &warnings}); err != nil {
		log.Warn().Err(err).Str("attempt_id", attemptID).Msg("warning sync failed")
	} else {
		c.markConfirmed()
	}

	if warnings > c.cfg.WarningThreshold {
		c.autoSubmit(c.ctx, "too many warnings")
		return
	}
	c.notify(Notice{Kind: NoticeViolation, WarningCount: warnings, Message: interruptionMessage(warnings, c.cfg.WarningThreshold)})
}

// Snapshot is a point-in-time copy of the controller's state.
type Snapshot struct {
	State         State
	AttemptID     string
	Answers       map[string]exam.Answer
	Flagged       []string
	TimeRemaining int
	WarningCount  int
	Answered      int
	Submitting    bool
	Proctoring    map[string]int
}

// Snapshot copies the current state for display.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	answered := 0
	for _, answer := range c.answers {
		if answer.IsSet() {
			answered++
		}
	}
	return Snapshot{
		State:         c.state,
		AttemptID:     c.attemptID,
		Answers:       exam.CloneAnswers(c.answers),
		Flagged:       c.flaggedLocked(),
		TimeRemaining: c.countdown.Remaining(),
		WarningCount:  c.warnings,
		Answered:      answered,
		Submitting:    c.submitting,
		Proctoring:    c.monitor.Tallies(),
	}
}

func (c *Controller) flaggedLocked() []string {
	flagged := make([]string, 0, len(c.flagged))
	for id := range c.flagged {
		flagged = append(flagged, id)
	}
	sort.Strings(flagged)
	return flagged
}
