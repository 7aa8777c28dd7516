package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes. The record lives under the request id; the response key
// holds only the request id so both lookups share one copy.
const (
	redisRequestKeyPrefix  = "openbridge:trace:req:"
	redisResponseKeyPrefix = "openbridge:trace:resp:"
)

// RedisStore persists trace records in Redis so captures survive restarts
// and are visible across replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the given redis:// URL and verifies the
// connection. A non-positive ttl stores records without expiry.
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

func (s *RedisStore) GetByRequestID(ctx context.Context, requestID string) (*Record, error) {
	raw, err := s.client.Get(ctx, redisRequestKeyPrefix+requestID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode trace record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) GetByResponseID(ctx context.Context, responseID string) (*Record, error) {
	requestID, err := s.client.Get(ctx, redisResponseKeyPrefix+responseID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return s.GetByRequestID(ctx, requestID)
}

func (s *RedisStore) Set(ctx context.Context, record *Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode trace record: %w", err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}

	if err := s.client.Set(ctx, redisRequestKeyPrefix+record.RequestID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if record.ResponseID != "" {
		key := redisResponseKeyPrefix + record.ResponseID
		if err := s.client.Set(ctx, key, record.RequestID, ttl).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
