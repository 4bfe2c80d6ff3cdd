package store

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	records map[int64]*Record
}

// NewMemory constructs the in-memory Store implementation used for tests
// and single-process deployments. State is lost on restart.
func NewMemory() Store {
	return &memoryStore{records: make(map[int64]*Record)}
}

func (m *memoryStore) GetOrCreate(_ context.Context, id int64) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[id]; ok {
		return *rec, false, nil
	}
	now := time.Now().UTC()
	rec := &Record{
		ID:        id,
		Stage:     StageNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[id] = rec
	return *rec, true, nil
}

func (m *memoryStore) Get(_ context.Context, id int64) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, false, nil
	}
	return *rec, true, nil
}

func (m *memoryStore) Update(_ context.Context, id int64, mutate func(*Record)) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	mutate(rec)
	rec.ID = id
	rec.UpdatedAt = time.Now().UTC()
	return *rec, nil
}
