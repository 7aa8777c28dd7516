package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces turn entries so the bridge can share a database.
const redisKeyPrefix = "openbridge:resp:"

// RedisStore persists turns in Redis with per-entry TTLs, letting several
// bridge replicas serve the same conversations.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the given redis:// URL and verifies the
// connection. A non-positive ttl stores entries without expiry.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, responseID string) (*StoredTurn, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+responseID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var turn StoredTurn
	if err := json.Unmarshal([]byte(raw), &turn); err != nil {
		return nil, fmt.Errorf("decode stored turn: %w", err)
	}
	return &turn, nil
}

func (s *RedisStore) Put(ctx context.Context, responseID string, turn *StoredTurn) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode stored turn: %w", err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, redisKeyPrefix+responseID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, responseID string) (bool, error) {
	removed, err := s.client.Del(ctx, redisKeyPrefix+responseID).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return removed > 0, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
