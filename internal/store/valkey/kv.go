// Package storevalkey is the shared KV backend on Valkey. Expiry is
// enforced server-side via SET EX, and Take maps onto GETDEL so state
// consumption stays atomic across gateway replicas.
package storevalkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/store"
)

type KV struct {
	valkey valkey.Client
	prefix string
}

var _ = store.KV(&KV{})

func New(valkeyClient valkey.Client, prefix string) *KV {
	prefix = strings.TrimSuffix(prefix, ":")
	return &KV{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *KV) key(key string) string {
	if s.prefix == "" {
		return key
	}

	return s.prefix + ":" + key
}

func (s *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.valkey.B().Set().Key(s.key(key)).Value(valkey.BinaryString(value)).Ex(ttl).Build()
	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(key)).Build()).AsBytes()
	if err != nil {
		return nil, wrapErr(err, "get")
	}

	return bytes, nil
}

func (s *KV) Take(ctx context.Context, key string) ([]byte, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Getdel().Key(s.key(key)).Build()).AsBytes()
	if err != nil {
		return nil, wrapErr(err, "getdel")
	}

	return bytes, nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *KV) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		scan, err := s.valkey.Do(ctx, s.valkey.B().Scan().Cursor(cursor).Match(s.key(pattern)).Count(100).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("executing scan command: %w", err)
		}

		cursor = scan.Cursor
		for _, key := range scan.Elements {
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+":")
			}
			keys = append(keys, key)
		}

		if cursor == 0 {
			return keys, nil
		}
	}
}

func wrapErr(err error, command string) error {
	valkeyErr, ok := valkey.IsValkeyErr(err)
	if ok && valkeyErr.IsNil() {
		return errors.Join(serviceerr.ErrNotFound, valkeyErr)
	}

	return fmt.Errorf("executing %s command: %w", command, err)
}
