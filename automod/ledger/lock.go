package ledger

import (
	"sync"
)

// Mutex which hands ownership to waiters in the order they called Lock. Unlike sync.Mutex it never lets a
// newcomer barge ahead of a queued waiter.
type fifoLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func (l *fifoLock) Lock() {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()
	<-ch
}

// Acquires the lock only if it is free and nobody is queued.
func (l *fifoLock) TryLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	return true
}

func (l *fifoLock) Unlock() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		panic("ledger: unlock of unlocked entry")
	}
	if len(l.waiters) == 0 {
		l.held = false
		l.mu.Unlock()
		return
	}
	// ownership passes directly to the first waiter; held stays true
	next := l.waiters[0]
	l.waiters[0] = nil
	l.waiters = l.waiters[1:]
	l.mu.Unlock()
	close(next)
}

// Number of goroutines blocked in Lock.
func (l *fifoLock) queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
