package recovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists recovery records in a local sqlite file. Each Save is
// a single upsert, so a record is either fully replaced or untouched.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "exam-recovery.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous = FULL;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS recovery_records (
		record_key TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL,
		saved_at_unix INTEGER NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(testID, studentID string) (*Record, error) {
	if err := validate(testID, studentID); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(
		context.Background(),
		`SELECT payload_json FROM recovery_records WHERE record_key = ?`,
		Key(testID, studentID),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *SQLiteStore) Save(record Record) error {
	if err := validate(record.TestID, record.StudentID); err != nil {
		return err
	}
	if record.SavedAt.IsZero() {
		record.SavedAt = s.now()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		context.Background(),
		`INSERT INTO recovery_records (record_key, payload_json, saved_at_unix)
		 VALUES (?, ?, ?)
		 ON CONFLICT(record_key) DO UPDATE SET
			payload_json = excluded.payload_json,
			saved_at_unix = excluded.saved_at_unix`,
		Key(record.TestID, record.StudentID),
		string(payload),
		record.SavedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) Clear(testID, studentID string) error {
	if err := validate(testID, studentID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(
		context.Background(),
		`DELETE FROM recovery_records WHERE record_key = ?`,
		Key(testID, studentID),
	)
	return err
}
