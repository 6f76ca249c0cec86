package biz

import "sync"

// sessionLocks hands out per-session RWMutexes so chunk writes to one
// session can run concurrently while a merge of that session is exclusive.
// Entries are reference-counted and dropped when idle, so the map does not
// grow with the total number of sessions ever seen.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	sync.RWMutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[string]*sessionLock)}
}

func (l *sessionLocks) acquire(id string) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.m[id]
	if !ok {
		lk = &sessionLock{}
		l.m[id] = lk
	}
	lk.refs++
	return lk
}

func (l *sessionLocks) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.m[id]
	if !ok {
		return
	}
	lk.refs--
	if lk.refs <= 0 {
		delete(l.m, id)
	}
}
