package sqlstore

import (
	"context"
)

// At most one non-completed attempt may exist per (test_id, student_id); the
// partial unique index backs the check done in CreateAttempt.
var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS tests (
		test_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		time_limit_minutes INTEGER NOT NULL,
		marks_per_question REAL,
		negative_marking INTEGER NOT NULL DEFAULT 0,
		negative_mark_value REAL NOT NULL DEFAULT 0,
		shuffle INTEGER NOT NULL DEFAULT 0,
		passing_percentage REAL NOT NULL DEFAULT 0,
		created_at_unix INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS test_questions (
		test_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		options_json TEXT NOT NULL,
		correct TEXT NOT NULL,
		marks REAL NOT NULL,
		PRIMARY KEY (test_id, question_id)
	);`,
	`CREATE TABLE IF NOT EXISTS attempts (
		attempt_id TEXT PRIMARY KEY,
		test_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		answers_json TEXT NOT NULL DEFAULT '{}',
		time_remaining INTEGER NOT NULL DEFAULT 0,
		warning_count INTEGER NOT NULL DEFAULT 0,
		started_at_unix INTEGER NOT NULL,
		last_updated_unix INTEGER NOT NULL,
		submitted_at_unix INTEGER,
		result_json TEXT,
		proctoring_json TEXT
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_active ON attempts(test_id, student_id) WHERE status <> 'completed';`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_test_student ON attempts(test_id, student_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_last_updated ON attempts(last_updated_unix);`,
	`CREATE INDEX IF NOT EXISTS idx_tests_created_at ON tests(created_at_unix DESC);`,
}

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS tests (
		test_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		time_limit_minutes INTEGER NOT NULL,
		marks_per_question DOUBLE PRECISION,
		negative_marking INTEGER NOT NULL DEFAULT 0,
		negative_mark_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		shuffle INTEGER NOT NULL DEFAULT 0,
		passing_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at_unix BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS test_questions (
		test_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		options_json TEXT NOT NULL,
		correct TEXT NOT NULL,
		marks DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (test_id, question_id)
	);`,
	`CREATE TABLE IF NOT EXISTS attempts (
		attempt_id TEXT PRIMARY KEY,
		test_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		answers_json TEXT NOT NULL DEFAULT '{}',
		time_remaining INTEGER NOT NULL DEFAULT 0,
		warning_count INTEGER NOT NULL DEFAULT 0,
		started_at_unix BIGINT NOT NULL,
		last_updated_unix BIGINT NOT NULL,
		submitted_at_unix BIGINT,
		result_json TEXT,
		proctoring_json TEXT
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_active ON attempts(test_id, student_id) WHERE status <> 'completed';`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_test_student ON attempts(test_id, student_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_last_updated ON attempts(last_updated_unix);`,
	`CREATE INDEX IF NOT EXISTS idx_tests_created_at ON tests(created_at_unix DESC);`,
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := schemaSQLite
	if s.dialect == DialectPostgres {
		statements = schemaPostgres
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
