package cache

import "sync"

// PathLocks is an advisory lock table keyed by canonical path. Writers to
// the same cache file serialize; distinct paths proceed independently.
// Entries are never removed: the set of partition paths a process touches
// is small and bounded by the catalog.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the mutex for path and returns its release function.
func (pl *PathLocks) Acquire(path string) func() {
	pl.mu.Lock()
	m, ok := pl.locks[path]
	if !ok {
		m = &sync.Mutex{}
		pl.locks[path] = m
	}
	pl.mu.Unlock()

	m.Lock()
	return m.Unlock
}
