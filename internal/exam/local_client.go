package exam

import (
	"context"
	"errors"
	"strings"
)

// LocalClient serves the attempt persistence operations in-process for a
// single student. The offline practice binary runs sessions against it.
type LocalClient struct {
	service *Service
	student Student
}

func NewLocalClient(service *Service, student Student) *LocalClient {
	return &LocalClient{service: service, student: student}
}

func (c *LocalClient) StudentID() string {
	return c.student.ID
}

func (c *LocalClient) CreateAttempt(ctx context.Context, testID string) (string, error) {
	if strings.TrimSpace(c.student.ID) == "" {
		return "", ErrAuthRequired
	}
	attempt, _, err := c.service.CreateAttempt(ctx, testID, c.student)
	if err != nil {
		return "", err
	}
	return attempt.ID, nil
}

func (c *LocalClient) UpdateAttempt(ctx context.Context, attemptID string, patch AttemptPatch) error {
	_, err := c.service.UpdateAttempt(ctx, attemptID, c.student.ID, patch)
	return err
}

func (c *LocalClient) FinalizeAttempt(ctx context.Context, attemptID string, final Finalization) (Attempt, error) {
	return c.service.FinalizeAttempt(ctx, attemptID, c.student.ID, final)
}

// FetchExistingAttempt returns nil without error when the student has no
// active attempt for the test.
func (c *LocalClient) FetchExistingAttempt(ctx context.Context, testID string) (*Attempt, error) {
	attempt, err := c.service.FetchExistingAttempt(ctx, testID, c.student.ID)
	if errors.Is(err, ErrAttemptNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (c *LocalClient) CountCompletedAttempts(ctx context.Context, testID string) (int, error) {
	return c.service.CountCompletedAttempts(ctx, testID, c.student.ID)
}

func (c *LocalClient) GetTest(ctx context.Context, testID string) (Test, error) {
	return c.service.GetTest(ctx, testID)
}

func (c *LocalClient) ListTests(ctx context.Context, limit int) ([]TestSummary, error) {
	return c.service.ListTests(ctx, limit)
}

func (c *LocalClient) CreatePracticeTest(ctx context.Context, title string, questionCount, timeLimitMinutes int) (TestSummary, error) {
	test, err := c.service.CreatePracticeTest(ctx, title, questionCount, timeLimitMinutes)
	if err != nil {
		return TestSummary{}, err
	}
	return test.Summary(), nil
}
