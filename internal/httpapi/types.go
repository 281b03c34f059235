package httpapi

import (
	"time"

	"exam-app/internal/exam"
)

type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type identityResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Identity  identityResponse `json:"identity"`
}

type testsResponse struct {
	Tests []exam.TestSummary `json:"tests"`
}

type practiceRequest struct {
	Title            string `json:"title"`
	QuestionCount    int    `json:"question_count"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
}

type createAttemptRequest struct {
	TestID string `json:"test_id"`
}

// attemptResponse mirrors exam.Attempt and adds derived fields. It is filled
// with copier so new attempt fields flow through without handler changes.
type attemptResponse struct {
	ID                   string                 `json:"id"`
	TestID               string                 `json:"test_id"`
	StudentID            string                 `json:"student_id"`
	StudentName          string                 `json:"student_name,omitempty"`
	Answers              map[string]exam.Answer `json:"answers"`
	Status               exam.Status            `json:"status"`
	TimeRemainingSeconds int                    `json:"time_remaining_seconds"`
	WarningCount         int                    `json:"warning_count"`
	StartedAt            time.Time              `json:"started_at"`
	LastUpdated          time.Time              `json:"last_updated"`
	SubmittedAt          *time.Time             `json:"submitted_at,omitempty"`
	Result               *exam.Result           `json:"result,omitempty"`
	Proctoring           map[string]int         `json:"proctoring,omitempty"`
	AnsweredCount        int                    `json:"answered_count"`
	Created              bool                   `json:"created,omitempty"`
}

type attemptsResponse struct {
	Attempts []attemptResponse `json:"attempts"`
}

type cleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

type healthResponse struct {
	Status string `json:"status"`
}
