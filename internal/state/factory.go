package state

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDisabled = "disabled"
)

// Options selects and tunes a store backend.
type Options struct {
	// Backend is one of memory, redis, or disabled.
	Backend string

	// RedisURL is the redis:// connection string for the redis backend.
	RedisURL string

	// TTL bounds entry lifetime; non-positive keeps entries forever.
	TTL time.Duration
}

// New builds the configured store. The redis backend dials and pings the
// server before returning.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(opts.TTL), nil
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.TTL)
	case BackendDisabled:
		return NewDisabledStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
	}
}
