package app

import "sync"

// userLocks serializes command application per user id. Version numbers
// are assigned by reading the current version and appending current+1, so
// two concurrent commands for the same user must not interleave between
// replay and append. Commands for different users proceed independently.
//
// Entries are never removed; the map grows with the number of distinct
// users commanded through this process, which is bounded and small
// relative to the event data itself.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) lock(userID string) *sync.Mutex {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m
}
