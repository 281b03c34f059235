package session

import (
	"sort"

	"exam-app/internal/exam"
	"exam-app/internal/recovery"
)

// Origin names where a controller's starting state came from.
type Origin string

const (
	OriginFresh  Origin = "fresh"
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Hydrated is the merged starting state for a controller.
type Hydrated struct {
	AttemptID     string
	Answers       map[string]exam.Answer
	Flagged       []string
	TimeRemaining int
	WarningCount  int
	// Interrupted is set when the prior session ended without a clean pause.
	// WarningCount already includes the resulting increment.
	Interrupted bool
	// Resume skips the instructions and enters Active directly.
	Resume       bool
	RemoteStatus exam.Status
	Origin       Origin
}

// Reconcile merges the local recovery record and the remote attempt. The
// local record wins for every field it carries; the remote attempt fills
// the rest. A completed remote attempt is ignored, as is a local record
// that belongs to it. A local record for a different attempt than the open
// remote one is dropped. A remote attempt that has not changed since
// creation is reused without counting an interruption.
func Reconcile(local *recovery.Record, remote *exam.Attempt, limitSeconds int) Hydrated {
	if remote != nil && remote.Status == exam.StatusCompleted {
		if local != nil && local.AttemptID == remote.ID {
			local = nil
		}
		remote = nil
	}
	if local != nil && remote != nil && local.AttemptID != "" && local.AttemptID != remote.ID {
		local = nil
	}

	hydrated := Hydrated{
		Answers:       make(map[string]exam.Answer),
		TimeRemaining: limitSeconds,
		Origin:        OriginFresh,
	}
	if remote != nil {
		hydrated.RemoteStatus = remote.Status
	}

	switch {
	case local != nil:
		hydrated.Origin = OriginLocal
		hydrated.Resume = true
		hydrated.AttemptID = local.AttemptID
		hydrated.TimeRemaining = local.TimeRemaining
		hydrated.WarningCount = local.WarningCount
		hydrated.Flagged = append([]string(nil), local.Flagged...)
		if local.Answers != nil {
			hydrated.Answers = exam.CloneAnswers(local.Answers)
		}

		if remote != nil {
			if hydrated.AttemptID == "" {
				hydrated.AttemptID = remote.ID
			}
			if local.Answers == nil && remote.Answers != nil {
				hydrated.Answers = exam.CloneAnswers(remote.Answers)
			}
			if remote.WarningCount > hydrated.WarningCount {
				hydrated.WarningCount = remote.WarningCount
			}
		}
		hydrated.Interrupted = !local.Paused

	case remote != nil:
		hydrated.Origin = OriginRemote
		hydrated.AttemptID = remote.ID
		hydrated.TimeRemaining = remote.TimeRemainingSeconds
		hydrated.WarningCount = remote.WarningCount
		if remote.Answers != nil {
			hydrated.Answers = exam.CloneAnswers(remote.Answers)
		}

		if !pristine(remote, limitSeconds) {
			hydrated.Resume = true
			hydrated.Interrupted = remote.Status == exam.StatusInProgress
		}
	}

	if hydrated.Interrupted {
		hydrated.WarningCount++
	}
	if hydrated.WarningCount < 0 {
		hydrated.WarningCount = 0
	}
	hydrated.TimeRemaining = clampRemaining(hydrated.TimeRemaining, limitSeconds)
	sort.Strings(hydrated.Flagged)
	return hydrated
}

// pristine reports whether a remote attempt is exactly as creation left it.
func pristine(attempt *exam.Attempt, limitSeconds int) bool {
	if attempt.Status != exam.StatusInProgress || attempt.WarningCount != 0 {
		return false
	}
	return attempt.TimeRemainingSeconds == limitSeconds && len(attempt.Answers) == 0
}

func clampRemaining(remaining, limitSeconds int) int {
	if remaining < 0 {
		return 0
	}
	if limitSeconds > 0 && remaining > limitSeconds {
		return limitSeconds
	}
	return remaining
}
