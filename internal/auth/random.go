package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

func randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)

	return b
}

// newState returns an opaque login correlator. Hashing keeps the value a
// fixed-width lowercase hex string regardless of the entropy source.
func newState() string {
	sum := sha256.Sum256(randBytes(16))

	return hex.EncodeToString(sum[:])
}

// tokenIDForSID derives the session token id from the provider's sid claim.
// The derivation lets a backchannel logout carrying only the sid find the
// session without the store ever holding the raw sid.
func tokenIDForSID(sid string) string {
	sum := sha256.Sum256([]byte(sid))

	return hex.EncodeToString(sum[:])
}

// newTokenID is the fallback for providers that do not issue a sid claim.
func newTokenID() string {
	sum := sha256.Sum256(randBytes(32))

	return hex.EncodeToString(sum[:])
}
