package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"
)

type ValkeyLocker struct {
	valkey valkey.Client
	prefix string
}

var _ = Locker(&ValkeyLocker{})

func NewValkeyLocker(valkeyClient valkey.Client, prefix string) *ValkeyLocker {
	return &ValkeyLocker{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (l *ValkeyLocker) key(name string) string {
	if l.prefix == "" {
		return "lock_" + name
	}

	return l.prefix + ":lock_" + name
}

func (l *ValkeyLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, func(), error) {
	token := uuid.NewString()
	key := l.key(name)

	cmd := l.valkey.B().Set().Key(key).Value(token).Nx().Ex(ttl).Build()
	if err := l.valkey.Do(ctx, cmd).Error(); err != nil {
		if valkeyErr, ok := valkey.IsValkeyErr(err); ok && valkeyErr.IsNil() {
			// Nil reply from SET NX: someone else holds the lock.
			return false, nil, nil
		}

		return false, nil, fmt.Errorf("executing set command: %w", err)
	}

	release := func() {
		// The token check keeps a slow holder from releasing a lock that
		// already expired and was re-acquired by someone else.
		held, err := l.valkey.Do(ctx, l.valkey.B().Get().Key(key).Build()).ToString()
		if err != nil || held != token {
			return
		}
		if err := l.valkey.Do(ctx, l.valkey.B().Del().Key(key).Build()).Error(); err != nil {
			slogctx.Error(ctx, "Failed to release lock", "lock", name, "error", err)
		}
	}

	return true, release, nil
}
