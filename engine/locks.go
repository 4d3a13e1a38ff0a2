package engine

import "sync"

// lockTable hands out one mutex per category so mutations on the same
// category never interleave their storage effects, while different
// categories proceed independently. Locks are never removed; the table
// grows with the set of categories ever touched, which is bounded in
// practice by the client UI.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the category's mutex and returns the release function.
func (t *lockTable) lock(category string) func() {
	t.mu.Lock()
	m, ok := t.locks[category]
	if !ok {
		m = &sync.Mutex{}
		t.locks[category] = m
	}
	t.mu.Unlock()
	m.Lock()
	return m.Unlock
}
