package redis_cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	research_cache "github.com/mohammad-safakhou/sourcer/internal/research/cache"
)

const keyPrefix = "sourcer:research:"

type Store struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) research_cache.Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: rdb}
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) research_cache.Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}
