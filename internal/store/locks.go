package store

import "sync"

// ScopeLocks hands out one mutex per scope key. Holders must keep critical
// sections short; locks are never removed.
//
// Exclusion is per process. Processes sharing a SQLite store are not
// serialized against each other; the default history stays consistent only
// because SQLStore.SetDefault appends inside its own transaction.
type ScopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScopeLocks creates an empty lock table
func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function
func (l *ScopeLocks) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
