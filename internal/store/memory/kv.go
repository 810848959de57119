// Package storememory is the in-process KV backend, used for development
// setups and tests. TTL handling is delegated to go-cache.
package storememory

import (
	"context"
	"path"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/store"
)

type KV struct {
	cache *gocache.Cache

	// guards Take; go-cache has no atomic get-and-delete
	mu sync.Mutex
}

var _ = store.KV(&KV{})

func New() *KV {
	return &KV{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (s *KV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	s.cache.Set(key, buf, ttl)

	return nil
}

func (s *KV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	//nolint:forcetypeassert
	return v.([]byte), nil
}

func (s *KV) Take(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(key)

	return v, nil
}

func (s *KV) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *KV) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for key, item := range s.cache.Items() {
		if item.Expired() {
			continue
		}
		if ok, err := path.Match(pattern, key); err != nil {
			return nil, err
		} else if ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}
