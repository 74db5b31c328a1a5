package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The limiter script runs once per send, on the hot path of every runner
// worker. Timeouts stay short so a slow redis degrades into skipped sends
// instead of stalling the whole batch.
const (
	dialTimeout = 2 * time.Second
	opTimeout   = 500 * time.Millisecond
)

// NewRedis connects the rate-limiter client, with one pooled connection per
// runner worker so concurrent token checks never queue on checkout.
func NewRedis(url string, runnerConcurrency int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	opt.DialTimeout = dialTimeout
	opt.ReadTimeout = opTimeout
	opt.WriteTimeout = opTimeout
	if runnerConcurrency > opt.PoolSize {
		opt.PoolSize = runnerConcurrency
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
