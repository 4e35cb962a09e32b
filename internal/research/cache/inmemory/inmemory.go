package inmemory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	research_cache "github.com/mohammad-safakhou/sourcer/internal/research/cache"
)

type Store struct {
	cache *cache.Cache
}

// NewInMemoryStore creates a process-local cache whose entries expire after
// defaultTTL unless Set passes its own.
func NewInMemoryStore(defaultTTL time.Duration) research_cache.Store {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Store{cache: cache.New(defaultTTL, 10*time.Minute)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if x, found := s.cache.Get(key); found {
		return x.([]byte), true, nil
	}
	return nil, false, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	s.cache.Set(key, value, ttl)
	return nil
}
