package ratelimit

import "context"

// RateLimiter bounds dispatch throughput per organization and channel so one
// tenant's batch cannot starve a shared provider account.
type RateLimiter interface {
	Allow(ctx context.Context, orgID string, channel string) (bool, error)
	Wait(ctx context.Context, orgID string, channel string) error
}
