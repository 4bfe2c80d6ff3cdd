package funnel

import "sync"

// userLocks serializes funnel transitions per user id. Transitions for
// different users proceed in parallel; events for one user are applied in
// arrival order. Locks are never evicted, the map is bounded by the
// number of distinct users seen since start.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its unlock func.
func (l *userLocks) lock(id int64) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
