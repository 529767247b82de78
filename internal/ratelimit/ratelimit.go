// Package ratelimit applies fixed-window request limits per caller. Keys are
// the authenticated wallet when present, the client IP otherwise. Limit
// checks fail open: an unavailable backend must not take the API down with it.
package ratelimit

import (
	"context"
	"time"
)

// Class selects the limit profile for a route group.
type Class string

const (
	// ClassAuth covers token minting endpoints, which are unauthenticated
	// and the cheapest to abuse.
	ClassAuth Class = "auth"
	// ClassMutation covers ledger-committing operations.
	ClassMutation Class = "mutation"
	// ClassRead covers projection reads.
	ClassRead Class = "read"
)

// Limit is requests allowed per window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// DefaultLimits matches the posture of the upstream deployment: tight on
// auth, moderate on writes, loose on reads.
func DefaultLimits() map[Class]Limit {
	return map[Class]Limit{
		ClassAuth:     {Requests: 10, Window: time.Minute},
		ClassMutation: {Requests: 60, Window: time.Minute},
		ClassRead:     {Requests: 600, Window: time.Minute},
	}
}

// Result is the outcome of one limit check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Store counts requests per key within a fixed window.
type Store interface {
	// Incr bumps the counter for key in the current window and returns the
	// new count. The window resets when its TTL lapses.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter evaluates limits against a store.
type Limiter struct {
	store  Store
	limits map[Class]Limit
}

func NewLimiter(store Store, limits map[Class]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{store: store, limits: limits}
}

// Check counts one request for key under the class profile.
func (l *Limiter) Check(ctx context.Context, key string, class Class) (Result, error) {
	limit, ok := l.limits[class]
	if !ok {
		return Result{Allowed: true}, nil
	}
	count, err := l.store.Incr(ctx, string(class)+":"+key, limit.Window)
	if err != nil {
		return Result{}, err
	}
	remaining := limit.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= limit.Requests,
		Limit:      limit.Requests,
		Remaining:  remaining,
		RetryAfter: limit.Window,
	}, nil
}
