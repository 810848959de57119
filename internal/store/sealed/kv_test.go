package sealed_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	storememory "github.com/bcc-code/auth-gateway/internal/store/memory"
	"github.com/bcc-code/auth-gateway/internal/store/sealed"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := sealed.New(storememory.New(), []byte("too short"))
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	ctx := t.Context()
	inner := storememory.New()
	kv, err := sealed.New(inner, testSecret)
	require.NoError(t, err)

	values := [][]byte{
		[]byte("token-value"),
		[]byte(""),
		[]byte{0x00, 0xff, 0x10},
		[]byte(`{"state":"abc","return_url":"https://example.org/page"}`),
	}

	for _, value := range values {
		require.NoError(t, kv.Set(ctx, "k", value, time.Minute))

		got, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}
}

func TestValuesAreOpaqueAtRest(t *testing.T) {
	ctx := t.Context()
	inner := storememory.New()
	kv, err := sealed.New(inner, testSecret)
	require.NoError(t, err)

	plain := []byte("super-secret-access-token")
	require.NoError(t, kv.Set(ctx, "k", plain, time.Minute))

	raw, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), string(plain))
}

func TestBitFlipReadsAsAbsent(t *testing.T) {
	ctx := t.Context()
	inner := storememory.New()
	kv, err := sealed.New(inner, testSecret)
	require.NoError(t, err)

	require.NoError(t, kv.Set(ctx, "k", []byte("payload-to-corrupt"), time.Minute))

	raw, err := inner.Get(ctx, "k")
	require.NoError(t, err)

	// flip one bit in every position in turn; decryption must never yield a
	// wrong plaintext
	for i := range raw {
		corrupted := make([]byte, len(raw))
		copy(corrupted, raw)
		corrupted[i] ^= 0x01

		require.NoError(t, inner.Set(ctx, "corrupt", corrupted, time.Minute))

		_, err := kv.Get(ctx, "corrupt")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound, "bit flip at offset %d", i)
	}
}

func TestTruncatedValueReadsAsAbsent(t *testing.T) {
	ctx := t.Context()
	inner := storememory.New()
	kv, err := sealed.New(inner, testSecret)
	require.NoError(t, err)

	require.NoError(t, inner.Set(ctx, "k", []byte("short"), time.Minute))

	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestTakeOpensSealedValue(t *testing.T) {
	ctx := t.Context()
	kv, err := sealed.New(storememory.New(), testSecret)
	require.NoError(t, err)

	require.NoError(t, kv.Set(ctx, "k", []byte("once"), time.Minute))

	got, err := kv.Take(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("once"), got)

	_, err = kv.Take(ctx, "k")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}
