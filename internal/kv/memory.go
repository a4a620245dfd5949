package kv

import (
	"context"
	"strings"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps everything in process memory. Useful for local runs and
// tests; nothing survives a restart.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore creates an empty store. Entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	return v.(string), nil
}

func (s *MemoryStore) Put(_ context.Context, key, value string) error {
	s.c.Set(key, value, cache.NoExpiration)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.c.Items() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
