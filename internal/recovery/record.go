// Package recovery keeps a same-device write-ahead copy of a running exam
// session, keyed by test and student, so a restarted client can resume
// without any network round trip.
package recovery

import (
	"errors"
	"time"

	"exam-app/internal/exam"
)

var ErrInvalidKey = errors.New("test id and student id are required")

type Record struct {
	TestID        string                 `json:"test_id"`
	StudentID     string                 `json:"student_id"`
	AttemptID     string                 `json:"attempt_id"`
	Answers       map[string]exam.Answer `json:"answers"`
	Flagged       []string               `json:"flagged,omitempty"`
	TimeRemaining int                    `json:"time_remaining"`
	WarningCount  int                    `json:"warning_count"`
	// Paused marks a record written by a clean pause. A later resume from a
	// paused record is not an interruption.
	Paused  bool      `json:"paused,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// Store is synchronous on purpose: Save must complete before any remote
// call for the same mutation starts.
type Store interface {
	Load(testID, studentID string) (*Record, error)
	Save(record Record) error
	Clear(testID, studentID string) error
}

func Key(testID, studentID string) string {
	return "exam_state_" + testID + "_" + studentID
}

func validate(testID, studentID string) error {
	if testID == "" || studentID == "" {
		return ErrInvalidKey
	}
	return nil
}
