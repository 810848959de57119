// Package lock provides a non-blocking try-lock for work that must run at
// most once across gateway replicas.
package lock

import (
	"context"
	"time"
)

// Locker hands out named locks. TryAcquire never blocks: the second return
// value releases the lock and must be called on every path when acquired is
// true. The TTL bounds how long a crashed holder can keep the lock.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, release func(), err error)
}
