package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a single-process Locker for development setups and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

var _ = Locker(&MemoryLocker{})

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, name string, ttl time.Duration) (bool, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[name]; ok && l.clock().Before(expiry) {
		return false, nil, nil
	}

	l.held[name] = l.clock().Add(ttl)

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
	}

	return true, release, nil
}
