package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/LexiconIndonesia/covercraft-service/common/redis"
	"github.com/samber/lo"
)

// RedisStore keeps one scope under a key prefix so several scopes can share a
// database.
type RedisStore struct {
	client *redis.RedisClient
	prefix string
}

// NewRedisStore namespaces keys as "<prefix>:<scope>:<key>".
func NewRedisStore(client *redis.RedisClient, prefix string, scope Scope) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: fmt.Sprintf("%s:%s:", prefix, scope),
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	return s.client.Delete(ctx, lo.Map(keys, func(k string, _ int) string { return s.key(k) })...)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.DeletePrefix(ctx, s.prefix)
	return err
}
