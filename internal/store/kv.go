package store

import (
	"context"
	"time"
)

// KV is a string-keyed byte store with per-key expiration. Expired and
// never-set keys are indistinguishable: both read as serviceerr.ErrNotFound.
// Implementations must give read-after-write consistency for a single key
// within one process.
type KV interface {
	// Set overwrites or creates the key. ttl must be positive; the store is
	// the sole enforcer of expiry and the only eviction mechanism.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value, or an error wrapping serviceerr.ErrNotFound when
	// the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Take atomically reads and deletes the key. A second Take (or Get) of
	// the same key observes absence. This is what makes authorization state
	// single-use.
	Take(ctx context.Context, key string) ([]byte, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists the live keys matching a glob-style pattern, for
	// housekeeping sweeps only.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
