// Package ratelimit throttles calls on the secret-bearing API path with a
// token bucket per client, stored in a kvs.Store so several gateway
// instances can share one budget.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ideamans/cmsgate/pkg/shared/kvs"
)

// storeTimeout bounds a single bucket round trip to the store.
const storeTimeout = 100 * time.Millisecond

// Limiter implements a token bucket rate limiter backed by KVS.
type Limiter struct {
	kvs      kvs.Store
	rate     int // tokens per interval
	interval time.Duration
	now      func() time.Time
}

type bucket struct {
	Tokens     int       `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// NewLimiter creates a limiter allowing rate requests per interval per key.
func NewLimiter(rate int, interval time.Duration, store kvs.Store) *Limiter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Limiter{
		kvs:      store,
		rate:     rate,
		interval: interval,
		now:      time.Now,
	}
}

// Allow takes a token for key. It reports false when the bucket is empty.
// Store failures never block traffic: the request is allowed and the error
// returned for logging.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.rate <= 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	now := l.now()
	b, err := l.load(ctx, key)
	switch {
	case errors.Is(err, kvs.ErrNotFound):
		b = bucket{Tokens: l.rate, LastRefill: now}
	case err != nil:
		return true, err
	}

	if elapsed := now.Sub(b.LastRefill); elapsed >= l.interval {
		intervals := elapsed / l.interval
		b.Tokens = l.rate
		b.LastRefill = b.LastRefill.Add(intervals * l.interval)
	}

	if b.Tokens <= 0 {
		return false, nil
	}
	b.Tokens--

	if err := l.save(ctx, key, b); err != nil {
		return true, err
	}
	return true, nil
}

// RetryAfter returns how long key must wait for its next refill.
func (l *Limiter) RetryAfter(ctx context.Context, key string) time.Duration {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	b, err := l.load(ctx, key)
	if err != nil {
		return l.interval
	}
	wait := b.LastRefill.Add(l.interval).Sub(l.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// Reset clears the bucket for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return l.kvs.Delete(ctx, key)
}

func (l *Limiter) load(ctx context.Context, key string) (bucket, error) {
	var b bucket
	data, err := l.kvs.Get(ctx, key)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		// Corrupted entries start over with a full bucket.
		return b, kvs.ErrNotFound
	}
	return b, nil
}

// save persists b. Idle buckets expire after two intervals, by which time
// they would have refilled anyway.
func (l *Limiter) save(ctx context.Context, key string, b bucket) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return l.kvs.Set(ctx, key, data, 2*l.interval)
}
