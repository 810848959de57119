// Package sealed wraps any KV with authenticated encryption at rest.
// Values are sealed as AES-256-CTR ciphertext under a random 16-byte IV and
// authenticated with HMAC-SHA256 over ciphertext||IV (encrypt-then-MAC).
// The stored form is base64(IV) || base64(MAC) || base64(ciphertext).
// A value failing the MAC check reads as absent, never as plaintext.
package sealed

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/store"
)

const (
	ivLen = aes.BlockSize

	// base64.StdEncoding lengths of the fixed-size segments
	ivSegLen  = 24 // 16 bytes
	macSegLen = 44 // 32 bytes
)

var errTampered = errors.New("sealed value failed integrity check")

type KV struct {
	inner  store.KV
	encKey []byte
	macKey []byte
}

var _ = store.KV(&KV{})

// New derives independent encryption and MAC keys from the shared secret.
// The secret itself never touches the cipher directly, so rotating between
// differently sized secrets is safe.
func New(inner store.KV, secret []byte) (*KV, error) {
	if len(secret) < 32 {
		return nil, errors.New("store encryption secret must be at least 32 bytes")
	}

	encSum := sha256.Sum256(append([]byte("enc:"), secret...))
	macSum := sha256.Sum256(append([]byte("mac:"), secret...))

	return &KV{
		inner:  inner,
		encKey: encSum[:],
		macKey: macSum[:],
	}, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sealedValue, err := s.seal(value)
	if err != nil {
		return fmt.Errorf("sealing value: %w", err)
	}

	return s.inner.Set(ctx, key, sealedValue, ttl)
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	sealedValue, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	return s.openOrAbsent(sealedValue)
}

func (s *KV) Take(ctx context.Context, key string) ([]byte, error) {
	sealedValue, err := s.inner.Take(ctx, key)
	if err != nil {
		return nil, err
	}

	return s.openOrAbsent(sealedValue)
}

func (s *KV) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *KV) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.inner.Keys(ctx, pattern)
}

// openOrAbsent converts any integrity failure into the not-found case, so a
// tampered or corrupted at-rest value fails closed instead of surfacing
// garbage or an internal error to callers.
func (s *KV) openOrAbsent(sealedValue []byte) ([]byte, error) {
	plain, err := s.open(sealedValue)
	if err != nil {
		return nil, errors.Join(serviceerr.ErrNotFound, err)
	}

	return plain, nil
}

func (s *KV) seal(plain []byte) ([]byte, error) {
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(plain))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plain)

	mac := hmac.New(sha256.New, s.macKey)
	mac.Write(ciphertext)
	mac.Write(iv)

	out := make([]byte, 0, ivSegLen+macSegLen+base64.StdEncoding.EncodedLen(len(ciphertext)))
	out = append(out, base64.StdEncoding.EncodeToString(iv)...)
	out = append(out, base64.StdEncoding.EncodeToString(mac.Sum(nil))...)
	out = append(out, base64.StdEncoding.EncodeToString(ciphertext)...)

	return out, nil
}

func (s *KV) open(sealedValue []byte) ([]byte, error) {
	if len(sealedValue) < ivSegLen+macSegLen {
		return nil, errTampered
	}

	// reject non-canonical padding bits so no two encodings alias one value
	decode := base64.StdEncoding.Strict()

	iv, err := decode.DecodeString(string(sealedValue[:ivSegLen]))
	if err != nil || len(iv) != ivLen {
		return nil, errTampered
	}

	wantMAC, err := decode.DecodeString(string(sealedValue[ivSegLen : ivSegLen+macSegLen]))
	if err != nil {
		return nil, errTampered
	}

	ciphertext, err := decode.DecodeString(string(sealedValue[ivSegLen+macSegLen:]))
	if err != nil {
		return nil, errTampered
	}

	mac := hmac.New(sha256.New, s.macKey)
	mac.Write(ciphertext)
	mac.Write(iv)
	if !hmac.Equal(mac.Sum(nil), wantMAC) {
		return nil, errTampered
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ciphertext)

	return plain, nil
}
