package exam

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTestNotFound        = errors.New("test not found")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptCompleted    = errors.New("attempt already completed")
	ErrAttemptLimitReached = errors.New("attempt limit reached")
	ErrForbidden           = errors.New("attempt belongs to another student")
	ErrInvalidAnswer       = errors.New("invalid answer")
	ErrInvalidPatch        = errors.New("invalid attempt patch")
	ErrInvalidStudent      = errors.New("student id is required")
	ErrAuthRequired        = errors.New("authentication required")
)

type TestRepository interface {
	SaveTest(ctx context.Context, test Test) error
	GetTest(ctx context.Context, testID string) (Test, error)
	ListTests(ctx context.Context, limit int) ([]TestSummary, error)
}

type AttemptRepository interface {
	// CreateAttempt inserts attempt unless an active attempt already exists for
	// the same test and student, in which case that one is returned with
	// created=false. maxCompleted <= 0 disables the completed-attempt limit.
	CreateAttempt(ctx context.Context, attempt Attempt, maxCompleted int) (Attempt, bool, error)
	GetAttempt(ctx context.Context, attemptID string) (Attempt, error)
	FindActiveAttempt(ctx context.Context, testID, studentID string) (Attempt, error)
	CountCompletedAttempts(ctx context.Context, testID, studentID string) (int, error)
	// UpdateAttempt applies patch and stamps LastUpdated. WarningCount never
	// decreases.
	UpdateAttempt(ctx context.Context, attemptID string, patch AttemptPatch, now time.Time) (Attempt, error)
	// FinalizeAttempt marks the attempt completed and removes any other active
	// attempts for the same test and student in the same transaction.
	FinalizeAttempt(ctx context.Context, attemptID string, final Finalization, now time.Time) (Attempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
	DeleteStaleAttempts(ctx context.Context, updatedBefore time.Time) (int64, error)
}
