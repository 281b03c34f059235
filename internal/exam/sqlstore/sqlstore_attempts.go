package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"exam-app/internal/exam"
)

const attemptColumns = `attempt_id, test_id, student_id, student_name, status, answers_json,
	time_remaining, warning_count, started_at_unix, last_updated_unix,
	submitted_at_unix, result_json, proctoring_json`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateAttempt runs as a single transaction so the active-attempt lookup,
// the completed-attempt limit and the insert see one consistent view.
//
// Invariants:
//   - At most one non-completed attempt exists per (test_id, student_id).
//   - A concurrent insert that loses the race on idx_attempts_active resolves
//     to the winner's attempt instead of failing.
func (s *Store) CreateAttempt(ctx context.Context, attempt exam.Attempt, maxCompleted int) (exam.Attempt, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return exam.Attempt{}, false, err
	}
	defer tx.Rollback()

	existing, err := s.findActive(ctx, tx, attempt.TestID, attempt.StudentID, s.forUpdate())
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, exam.ErrAttemptNotFound) {
		return exam.Attempt{}, false, err
	}

	if maxCompleted > 0 {
		var completed int
		if err := tx.QueryRowContext(
			ctx,
			s.rebind(`SELECT COUNT(*) FROM attempts WHERE test_id = ? AND student_id = ? AND status = ?`),
			attempt.TestID,
			attempt.StudentID,
			string(exam.StatusCompleted),
		).Scan(&completed); err != nil {
			return exam.Attempt{}, false, err
		}
		if completed >= maxCompleted {
			return exam.Attempt{}, false, exam.ErrAttemptLimitReached
		}
	}

	answersJSON, err := marshalAnswers(attempt.Answers)
	if err != nil {
		return exam.Attempt{}, false, err
	}

	_, err = tx.ExecContext(
		ctx,
		s.rebind(`INSERT INTO attempts (attempt_id, test_id, student_id, student_name, status, answers_json,
			time_remaining, warning_count, started_at_unix, last_updated_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		attempt.ID,
		attempt.TestID,
		attempt.StudentID,
		attempt.StudentName,
		string(attempt.Status),
		answersJSON,
		attempt.TimeRemainingSeconds,
		attempt.WarningCount,
		attempt.StartedAt.UnixNano(),
		attempt.LastUpdated.UnixNano(),
	)
	if err != nil {
		_ = tx.Rollback()
		if winner, lookupErr := s.FindActiveAttempt(ctx, attempt.TestID, attempt.StudentID); lookupErr == nil {
			return winner, false, nil
		}
		return exam.Attempt{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return exam.Attempt{}, false, err
	}
	return attempt, true, nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (exam.Attempt, error) {
	return s.getAttempt(ctx, s.db, attemptID, "")
}

func (s *Store) FindActiveAttempt(ctx context.Context, testID, studentID string) (exam.Attempt, error) {
	return s.findActive(ctx, s.db, testID, studentID, "")
}

func (s *Store) CountCompletedAttempts(ctx context.Context, testID, studentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		s.rebind(`SELECT COUNT(*) FROM attempts WHERE test_id = ? AND student_id = ? AND status = ?`),
		testID,
		studentID,
		string(exam.StatusCompleted),
	).Scan(&count)
	return count, err
}

// UpdateAttempt applies a merge-patch. Completed attempts are immutable and
// the stored warning count only moves upward.
func (s *Store) UpdateAttempt(ctx context.Context, attemptID string, patch exam.AttemptPatch, now time.Time) (exam.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return exam.Attempt{}, err
	}
	defer tx.Rollback()

	attempt, err := s.getAttempt(ctx, tx, attemptID, s.forUpdate())
	if err != nil {
		return exam.Attempt{}, err
	}
	if attempt.Status == exam.StatusCompleted {
		return exam.Attempt{}, exam.ErrAttemptCompleted
	}

	if patch.Answers != nil {
		attempt.Answers = exam.CloneAnswers(patch.Answers)
	}
	if patch.Status != nil {
		attempt.Status = *patch.Status
	}
	if patch.TimeRemainingSeconds != nil {
		attempt.TimeRemainingSeconds = *patch.TimeRemainingSeconds
	}
	if patch.WarningCount != nil && *patch.WarningCount > attempt.WarningCount {
		attempt.WarningCount = *patch.WarningCount
	}
	attempt.LastUpdated = now

	answersJSON, err := marshalAnswers(attempt.Answers)
	if err != nil {
		return exam.Attempt{}, err
	}

	_, err = tx.ExecContext(
		ctx,
		s.rebind(`UPDATE attempts
		 SET status = ?, answers_json = ?, time_remaining = ?, warning_count = ?, last_updated_unix = ?
		 WHERE attempt_id = ?`),
		string(attempt.Status),
		answersJSON,
		attempt.TimeRemainingSeconds,
		attempt.WarningCount,
		now.UnixNano(),
		attemptID,
	)
	if err != nil {
		return exam.Attempt{}, err
	}

	if err := tx.Commit(); err != nil {
		return exam.Attempt{}, err
	}
	return attempt, nil
}

// FinalizeAttempt is the only path that writes status=completed. Any other
// active attempts for the same test and student are removed in the same
// transaction.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID string, final exam.Finalization, now time.Time) (exam.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return exam.Attempt{}, err
	}
	defer tx.Rollback()

	attempt, err := s.getAttempt(ctx, tx, attemptID, s.forUpdate())
	if err != nil {
		return exam.Attempt{}, err
	}
	if attempt.Status == exam.StatusCompleted {
		return exam.Attempt{}, exam.ErrAttemptCompleted
	}

	if final.Answers != nil {
		attempt.Answers = exam.CloneAnswers(final.Answers)
	}
	attempt.Status = exam.StatusCompleted
	attempt.TimeRemainingSeconds = final.TimeRemainingSeconds
	if final.WarningCount > attempt.WarningCount {
		attempt.WarningCount = final.WarningCount
	}
	result := final.Result
	attempt.Result = &result
	attempt.Proctoring = final.Proctoring
	submittedAt := now
	attempt.SubmittedAt = &submittedAt
	attempt.LastUpdated = now

	answersJSON, err := marshalAnswers(attempt.Answers)
	if err != nil {
		return exam.Attempt{}, err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return exam.Attempt{}, err
	}
	var proctoringJSON sql.NullString
	if len(final.Proctoring) > 0 {
		encoded, err := json.Marshal(final.Proctoring)
		if err != nil {
			return exam.Attempt{}, err
		}
		proctoringJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err = tx.ExecContext(
		ctx,
		s.rebind(`UPDATE attempts
		 SET status = ?, answers_json = ?, time_remaining = ?, warning_count = ?,
			last_updated_unix = ?, submitted_at_unix = ?, result_json = ?, proctoring_json = ?
		 WHERE attempt_id = ?`),
		string(attempt.Status),
		answersJSON,
		attempt.TimeRemainingSeconds,
		attempt.WarningCount,
		now.UnixNano(),
		now.UnixNano(),
		string(resultJSON),
		proctoringJSON,
		attemptID,
	)
	if err != nil {
		return exam.Attempt{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		s.rebind(`DELETE FROM attempts
		 WHERE test_id = ? AND student_id = ? AND attempt_id <> ? AND status <> ?`),
		attempt.TestID,
		attempt.StudentID,
		attemptID,
		string(exam.StatusCompleted),
	); err != nil {
		return exam.Attempt{}, err
	}

	if err := tx.Commit(); err != nil {
		return exam.Attempt{}, err
	}
	return attempt, nil
}

func (s *Store) ListAttempts(ctx context.Context, filter exam.AttemptFilter) ([]exam.Attempt, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.TestID != "" {
		clauses = append(clauses, "test_id = ?")
		args = append(args, filter.TestID)
	}
	if filter.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + attemptColumns + ` FROM attempts`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY started_at_unix DESC, attempt_id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]exam.Attempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func (s *Store) DeleteStaleAttempts(ctx context.Context, updatedBefore time.Time) (int64, error) {
	result, err := s.db.ExecContext(
		ctx,
		s.rebind(`DELETE FROM attempts WHERE status IN (?, ?) AND last_updated_unix < ?`),
		string(exam.StatusInProgress),
		string(exam.StatusPaused),
		updatedBefore.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) getAttempt(ctx context.Context, q queryRower, attemptID, suffix string) (exam.Attempt, error) {
	row := q.QueryRowContext(
		ctx,
		s.rebind(`SELECT `+attemptColumns+` FROM attempts WHERE attempt_id = ?`+suffix),
		attemptID,
	)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	return attempt, err
}

func (s *Store) findActive(ctx context.Context, q queryRower, testID, studentID, suffix string) (exam.Attempt, error) {
	row := q.QueryRowContext(
		ctx,
		s.rebind(`SELECT `+attemptColumns+` FROM attempts
		 WHERE test_id = ? AND student_id = ? AND status <> ?
		 ORDER BY last_updated_unix DESC
		 LIMIT 1`+suffix),
		testID,
		studentID,
		string(exam.StatusCompleted),
	)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	return attempt, err
}

func scanAttempt(row rowScanner) (exam.Attempt, error) {
	var (
		attempt          exam.Attempt
		status           string
		answersJSON      string
		startedAtNanos   int64
		lastUpdatedNanos int64
		submittedAtNanos sql.NullInt64
		resultJSON       sql.NullString
		proctoringJSON   sql.NullString
	)

	if err := row.Scan(
		&attempt.ID,
		&attempt.TestID,
		&attempt.StudentID,
		&attempt.StudentName,
		&status,
		&answersJSON,
		&attempt.TimeRemainingSeconds,
		&attempt.WarningCount,
		&startedAtNanos,
		&lastUpdatedNanos,
		&submittedAtNanos,
		&resultJSON,
		&proctoringJSON,
	); err != nil {
		return exam.Attempt{}, err
	}

	attempt.Status = exam.Status(status)
	attempt.StartedAt = time.Unix(0, startedAtNanos).UTC()
	attempt.LastUpdated = time.Unix(0, lastUpdatedNanos).UTC()

	attempt.Answers = make(map[string]exam.Answer)
	if answersJSON != "" {
		if err := json.Unmarshal([]byte(answersJSON), &attempt.Answers); err != nil {
			return exam.Attempt{}, err
		}
	}
	if submittedAtNanos.Valid {
		submittedAt := time.Unix(0, submittedAtNanos.Int64).UTC()
		attempt.SubmittedAt = &submittedAt
	}
	if resultJSON.Valid {
		var result exam.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return exam.Attempt{}, err
		}
		attempt.Result = &result
	}
	if proctoringJSON.Valid {
		if err := json.Unmarshal([]byte(proctoringJSON.String), &attempt.Proctoring); err != nil {
			return exam.Attempt{}, err
		}
	}
	return attempt, nil
}

func marshalAnswers(answers map[string]exam.Answer) (string, error) {
	if answers == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(answers)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
