package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"exam-app/internal/exam"
)

// SaveTest replaces the test row and its full question list.
func (s *Store) SaveTest(ctx context.Context, test exam.Test) error {
	if test.ID == "" {
		return errors.New("test id is required")
	}
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var marksOverride sql.NullFloat64
	if test.MarksPerQuestion != nil {
		marksOverride = sql.NullFloat64{Float64: *test.MarksPerQuestion, Valid: true}
	}

	_, err = tx.ExecContext(
		ctx,
		s.rebind(`INSERT INTO tests (test_id, title, description, time_limit_minutes, marks_per_question,
			negative_marking, negative_mark_value, shuffle, passing_percentage, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (test_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			time_limit_minutes = excluded.time_limit_minutes,
			marks_per_question = excluded.marks_per_question,
			negative_marking = excluded.negative_marking,
			negative_mark_value = excluded.negative_mark_value,
			shuffle = excluded.shuffle,
			passing_percentage = excluded.passing_percentage`),
		test.ID,
		test.Title,
		test.Description,
		test.TimeLimitMinutes,
		marksOverride,
		boolToInt(test.NegativeMarking),
		test.NegativeMarkValue,
		boolToInt(test.Shuffle),
		test.PassingPercentage,
		test.CreatedAt.UnixNano(),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM test_questions WHERE test_id = ?`), test.ID); err != nil {
		return err
	}

	for idx, question := range test.Questions {
		if question.ID == "" {
			question.ID = exam.MakeQuestionID(question)
		}

		optionsJSON, err := json.Marshal(question.Options)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(
			ctx,
			s.rebind(`INSERT INTO test_questions (test_id, question_id, position, prompt, options_json, correct, marks)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			test.ID,
			question.ID,
			idx,
			question.Prompt,
			string(optionsJSON),
			string(question.Correct),
			question.Marks,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetTest(ctx context.Context, testID string) (exam.Test, error) {
	var (
		test           exam.Test
		marksOverride  sql.NullFloat64
		negative       int
		shuffle        int
		createdAtNanos int64
	)

	err := s.db.QueryRowContext(
		ctx,
		s.rebind(`SELECT test_id, title, description, time_limit_minutes, marks_per_question,
			negative_marking, negative_mark_value, shuffle, passing_percentage, created_at_unix
		 FROM tests WHERE test_id = ?`),
		testID,
	).Scan(
		&test.ID,
		&test.Title,
		&test.Description,
		&test.TimeLimitMinutes,
		&marksOverride,
		&negative,
		&test.NegativeMarkValue,
		&shuffle,
		&test.PassingPercentage,
		&createdAtNanos,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return exam.Test{}, exam.ErrTestNotFound
	}
	if err != nil {
		return exam.Test{}, err
	}

	if marksOverride.Valid {
		value := marksOverride.Float64
		test.MarksPerQuestion = &value
	}
	test.NegativeMarking = negative != 0
	test.Shuffle = shuffle != 0
	test.CreatedAt = time.Unix(0, createdAtNanos).UTC()

	rows, err := s.db.QueryContext(
		ctx,
		s.rebind(`SELECT question_id, prompt, options_json, correct, marks
		 FROM test_questions
		 WHERE test_id = ?
		 ORDER BY position ASC`),
		testID,
	)
	if err != nil {
		return exam.Test{}, err
	}
	defer rows.Close()

	test.Questions = make([]exam.Question, 0)
	for rows.Next() {
		var (
			question    exam.Question
			optionsJSON string
			correct     string
		)
		if err := rows.Scan(&question.ID, &question.Prompt, &optionsJSON, &correct, &question.Marks); err != nil {
			return exam.Test{}, err
		}
		if err := json.Unmarshal([]byte(optionsJSON), &question.Options); err != nil {
			return exam.Test{}, err
		}
		question.Correct = exam.Answer(correct)
		test.Questions = append(test.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return exam.Test{}, err
	}

	return test, nil
}

func (s *Store) ListTests(ctx context.Context, limit int) ([]exam.TestSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(
		ctx,
		s.rebind(`SELECT t.test_id, t.title, t.time_limit_minutes, t.created_at_unix,
			(SELECT COUNT(*) FROM test_questions q WHERE q.test_id = t.test_id) AS question_count
		 FROM tests t
		 ORDER BY t.created_at_unix DESC, t.test_id ASC
		 LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]exam.TestSummary, 0)
	for rows.Next() {
		var (
			summary        exam.TestSummary
			createdAtNanos int64
		)
		if err := rows.Scan(&summary.ID, &summary.Title, &summary.TimeLimitMinutes, &createdAtNanos, &summary.QuestionCount); err != nil {
			return nil, err
		}
		summary.CreatedAt = time.Unix(0, createdAtNanos).UTC()
		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}
