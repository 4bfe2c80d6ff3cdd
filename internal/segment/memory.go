package segment

import (
	"context"
	"sync"

	"github.com/m3rciful/funnelbot/internal/store"
)

type memoryIndex struct {
	mu   sync.RWMutex
	sets map[store.Stage]map[int64]struct{}
}

// NewMemory constructs the in-process Index implementation.
func NewMemory() Index {
	sets := make(map[store.Stage]map[int64]struct{}, len(store.Stages()))
	for _, stage := range store.Stages() {
		sets[stage] = make(map[int64]struct{})
	}
	return &memoryIndex{sets: sets}
}

func (m *memoryIndex) Rebuild(_ context.Context, id int64, stage store.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, set := range m.sets {
		delete(set, id)
	}
	m.sets[stage][id] = struct{}{}
	return nil
}

func (m *memoryIndex) Counts(_ context.Context) (map[store.Stage]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[store.Stage]int, len(m.sets))
	for stage, set := range m.sets {
		counts[stage] = len(set)
	}
	return counts, nil
}

func (m *memoryIndex) Members(_ context.Context, stage store.Stage) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.sets[stage]
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}
