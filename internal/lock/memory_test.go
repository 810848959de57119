package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerTryAcquire(t *testing.T) {
	locker := NewMemoryLocker()

	// First acquisition wins.
	acquired, release, err := locker.TryAcquire(t.Context(), "bootstrap", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NotNil(t, release)

	// A competing acquisition loses without blocking or erroring.
	acquired2, release2, err := locker.TryAcquire(t.Context(), "bootstrap", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired2)
	assert.Nil(t, release2)

	// Locks are per name.
	acquiredOther, releaseOther, err := locker.TryAcquire(t.Context(), "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquiredOther)
	releaseOther()

	// Released locks can be taken again.
	release()
	acquired3, release3, err := locker.TryAcquire(t.Context(), "bootstrap", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired3)
	release3()
}

func TestMemoryLockerExpiry(t *testing.T) {
	locker := NewMemoryLocker()

	now := time.Now()
	locker.clock = func() time.Time { return now }

	acquired, _, err := locker.TryAcquire(t.Context(), "bootstrap", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// A crashed holder never releases; the TTL frees the lock instead.
	now = now.Add(2 * time.Minute)

	acquired2, release2, err := locker.TryAcquire(t.Context(), "bootstrap", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired2)
	release2()
}
