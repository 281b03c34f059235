package session

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"exam-app/internal/exam"
)

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeInterruption NoticeKind = "interruption"
	NoticeViolation    NoticeKind = "violation"
	NoticeLowTime      NoticeKind = "low_time"
	NoticeTimeUp       NoticeKind = "time_up"
	NoticeAutoSubmit   NoticeKind = "auto_submit"
	NoticeSubmitFailed NoticeKind = "submit_failed"
	NoticePauseFailed  NoticeKind = "pause_failed"
)

// Notice is a user-facing message. None of them block the session.
type Notice struct {
	Kind         NoticeKind
	Message      string
	WarningCount int
}

func interruptionMessage(warnings, threshold int) string {
	return fmt.Sprintf(
		"Exam interrupted (%d/%d). Leaving the exam is recorded as a warning; after %d warnings the exam is submitted automatically.",
		warnings, threshold, threshold,
	)
}

// questionOrder is stable for an attempt so a resumed session shows the
// same sequence.
func questionOrder(test exam.Test, attemptID string) []exam.Question {
	order := append([]exam.Question(nil), test.Questions...)
	if !test.Shuffle || len(order) < 2 {
		return order
	}

	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(attemptID))
	rng := rand.New(rand.NewSource(int64(hasher.Sum64())))
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}
