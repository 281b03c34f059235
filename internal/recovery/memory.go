package recovery

import (
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps encoded records so callers never share maps with it.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Load(testID, studentID string) (*Record, error) {
	if err := validate(testID, studentID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	encoded, ok := m.records[Key(testID, studentID)]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(encoded, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *MemoryStore) Save(record Record) error {
	if err := validate(record.TestID, record.StudentID); err != nil {
		return err
	}
	if record.SavedAt.IsZero() {
		record.SavedAt = m.now()
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.records[Key(record.TestID, record.StudentID)] = encoded
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(testID, studentID string) error {
	if err := validate(testID, studentID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.records, Key(testID, studentID))
	m.mu.Unlock()
	return nil
}
