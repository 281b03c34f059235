package exam

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"exam-app/internal/opentdb"
)

const (
	defaultStaleAfter        = 24 * time.Hour
	defaultPracticeMinutes   = 10
	defaultPracticeQuestions = 10
)

type QuestionsFetcher func(ctx context.Context, amount int) ([]opentdb.RawQuestion, error)

type Student struct {
	ID   string
	Name string
}

type Options struct {
	// MaxCompletedAttempts caps completed attempts per student and test.
	// Zero means unlimited.
	MaxCompletedAttempts int
	StaleAfter           time.Duration
}

type Service struct {
	tests    TestRepository
	attempts AttemptRepository
	fetcher  QuestionsFetcher
	opts     Options

	cacheMu   sync.RWMutex
	testCache map[string]Test

	now   func() time.Time
	newID func() string
}

func NewService(tests TestRepository, attempts AttemptRepository, fetcher QuestionsFetcher, opts Options) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	return &Service{
		tests:     tests,
		attempts:  attempts,
		fetcher:   fetcher,
		opts:      opts,
		testCache: make(map[string]Test),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (s *Service) MaxCompletedAttempts() int {
	return s.opts.MaxCompletedAttempts
}

func (s *Service) SaveTest(ctx context.Context, test Test) error {
	test.ID = strings.TrimSpace(test.ID)
	if test.ID == "" {
		return errors.New("test id is required")
	}
	if test.CreatedAt.IsZero() {
		test.CreatedAt = s.now()
	}
	for idx := range test.Questions {
		if test.Questions[idx].ID == "" {
			test.Questions[idx].ID = MakeQuestionID(test.Questions[idx])
		}
	}

	if err := s.tests.SaveTest(ctx, test); err != nil {
		return err
	}
	s.setCachedTest(test)
	return nil
}

func (s *Service) GetTest(ctx context.Context, testID string) (Test, error) {
	testID = strings.TrimSpace(testID)
	if testID == "" {
		return Test{}, ErrTestNotFound
	}
	if test, ok := s.getCachedTest(testID); ok {
		return test, nil
	}

	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return Test{}, err
	}
	s.setCachedTest(test)
	return test, nil
}

func (s *Service) ListTests(ctx context.Context, limit int) ([]TestSummary, error) {
	return s.tests.ListTests(ctx, limit)
}

// CreatePracticeTest builds a test from Open Trivia DB questions.
func (s *Service) CreatePracticeTest(ctx context.Context, title string, questionCount, timeLimitMinutes int) (Test, error) {
	if s.fetcher == nil {
		return Test{}, errors.New("question fetcher is not configured")
	}
	if questionCount <= 0 {
		questionCount = defaultPracticeQuestions
	}
	if timeLimitMinutes <= 0 {
		timeLimitMinutes = defaultPracticeMinutes
	}

	raw, err := s.fetcher(ctx, questionCount)
	if err != nil {
		return Test{}, fmt.Errorf("fetch practice questions: %w", err)
	}
	questions := BuildQuestions(raw)
	if len(questions) == 0 {
		return Test{}, errors.New("no usable practice questions returned")
	}

	test := Test{
		ID:                generateTestID(),
		Title:             strings.TrimSpace(title),
		TimeLimitMinutes:  timeLimitMinutes,
		PassingPercentage: 50,
		Questions:         questions,
		CreatedAt:         s.now(),
	}
	if test.Title == "" {
		test.Title = "Practice test"
	}

	if err := s.SaveTest(ctx, test); err != nil {
		return Test{}, err
	}
	return test, nil
}

// CreateAttempt returns the student's active attempt for the test when one
// exists, otherwise a fresh in-progress attempt.
func (s *Service) CreateAttempt(ctx context.Context, testID string, student Student) (Attempt, bool, error) {
	student.ID = strings.TrimSpace(student.ID)
	if student.ID == "" {
		return Attempt{}, false, ErrInvalidStudent
	}

	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return Attempt{}, false, err
	}

	now := s.now()
	attempt := Attempt{
		ID:                   s.newID(),
		TestID:               test.ID,
		StudentID:            student.ID,
		StudentName:          strings.TrimSpace(student.Name),
		Answers:              map[string]Answer{},
		Status:               StatusInProgress,
		TimeRemainingSeconds: test.LimitSeconds(),
		StartedAt:            now,
		LastUpdated:          now,
	}

	stored, created, err := s.attempts.CreateAttempt(ctx, attempt, s.opts.MaxCompletedAttempts)
	if err != nil {
		return Attempt{}, false, err
	}
	if created {
		log.Info().
			Str("attempt_id", stored.ID).
			Str("test_id", stored.TestID).
			Str("student_id", stored.StudentID).
			Msg("attempt created")
	}
	return stored, created, nil
}

func (s *Service) GetAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	return s.attempts.GetAttempt(ctx, strings.TrimSpace(attemptID))
}

// GetOwnedAttempt returns the attempt only when it belongs to studentID.
func (s *Service) GetOwnedAttempt(ctx context.Context, attemptID, studentID string) (Attempt, error) {
	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if attempt.StudentID != studentID {
		return Attempt{}, ErrForbidden
	}
	return attempt, nil
}

func (s *Service) FetchExistingAttempt(ctx context.Context, testID, studentID string) (Attempt, error) {
	if strings.TrimSpace(studentID) == "" {
		return Attempt{}, ErrInvalidStudent
	}
	return s.attempts.FindActiveAttempt(ctx, strings.TrimSpace(testID), studentID)
}

func (s *Service) CountCompletedAttempts(ctx context.Context, testID, studentID string) (int, error) {
	return s.attempts.CountCompletedAttempts(ctx, testID, studentID)
}

func (s *Service) UpdateAttempt(ctx context.Context, attemptID, studentID string, patch AttemptPatch) (Attempt, error) {
	if patch.Status != nil && *patch.Status != StatusInProgress && *patch.Status != StatusPaused {
		return Attempt{}, fmt.Errorf("%w: status %q is not allowed", ErrInvalidPatch, *patch.Status)
	}
	if patch.TimeRemainingSeconds != nil && *patch.TimeRemainingSeconds < 0 {
		return Attempt{}, fmt.Errorf("%w: negative time remaining", ErrInvalidPatch)
	}
	if patch.WarningCount != nil && *patch.WarningCount < 0 {
		return Attempt{}, fmt.Errorf("%w: negative warning count", ErrInvalidPatch)
	}
	if !ValidAnswers(patch.Answers) {
		return Attempt{}, ErrInvalidAnswer
	}

	if _, err := s.GetOwnedAttempt(ctx, attemptID, studentID); err != nil {
		return Attempt{}, err
	}
	return s.attempts.UpdateAttempt(ctx, attemptID, patch, s.now())
}

func (s *Service) FinalizeAttempt(ctx context.Context, attemptID, studentID string, final Finalization) (Attempt, error) {
	if final.TimeRemainingSeconds < 0 {
		final.TimeRemainingSeconds = 0
	}
	if !ValidAnswers(final.Answers) {
		return Attempt{}, ErrInvalidAnswer
	}

	if _, err := s.GetOwnedAttempt(ctx, attemptID, studentID); err != nil {
		return Attempt{}, err
	}

	attempt, err := s.attempts.FinalizeAttempt(ctx, attemptID, final, s.now())
	if err != nil {
		return Attempt{}, err
	}
	log.Info().
		Str("attempt_id", attempt.ID).
		Float64("score", final.Result.Score).
		Float64("max_score", final.Result.MaxScore).
		Int("warnings", final.WarningCount).
		Msg("attempt finalized")
	return attempt, nil
}

func (s *Service) ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	return s.attempts.ListAttempts(ctx, filter)
}

// CleanupStaleAttempts removes in-progress and paused attempts with no
// activity inside the configured window.
func (s *Service) CleanupStaleAttempts(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.opts.StaleAfter)
	removed, err := s.attempts.DeleteStaleAttempts(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("stale attempts cleaned up")
	return removed, nil
}

func generateTestID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	const length = 10

	var builder strings.Builder
	builder.Grow(len("pt_") + length)
	builder.WriteString("pt_")
	for idx := 0; idx < length; idx++ {
		builder.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return builder.String()
}
