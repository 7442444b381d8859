package app

import "sync"

// LockTable provides per-event mutual exclusion. Signup mutations are
// check-then-act sequences (count, then insert or delete), so every
// operation touching one event's roster must run inside that event's
// critical section. Locks are created on demand and removed once no
// goroutine holds or waits on them, keeping the table bounded by the
// number of events under concurrent mutation.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*eventLock
}

type eventLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*eventLock)}
}

// Acquire blocks until the caller holds the lock for eventID and returns the
// release function. The release function must be called exactly once.
func (t *LockTable) Acquire(eventID string) func() {
	t.mu.Lock()
	l, ok := t.locks[eventID]
	if !ok {
		l = &eventLock{}
		t.locks[eventID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, eventID)
		}
		t.mu.Unlock()
	}
}

// Len reports the number of event locks currently held or contended.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
