package ratelimiter

import (
	"time"

	"Cirkle/backend/go/internal/config"
	"Cirkle/backend/go/pkg/util"
)

// RateLimiter reports whether a single request may proceed.
type RateLimiter interface {
	Allow() bool
}

// FromConfig builds the process-wide token bucket from the middleware config.
func FromConfig(cfg config.RateLimiterConfig) *TokenBucket {
	return NewTokenBucket(cfg.Rate, cfg.Capacity)
}

// Keyed keeps an independent token bucket per key, e.g. per user id.
// Buckets idle for longer than idleTTL are dropped, and at most maxKeys are tracked.
type Keyed struct {
	rate     float64
	capacity int
	buckets  *util.LRUCache[string, *TokenBucket]
	now      func() time.Time
}

// NewKeyed creates a Keyed limiter.
func NewKeyed(rate float64, capacity, maxKeys int, idleTTL time.Duration) (*Keyed, error) {
	buckets, err := util.NewLRU[string, *TokenBucket](util.CacheConfig{Capacity: maxKeys, TTL: idleTTL})
	if err != nil {
		return nil, err
	}
	return &Keyed{rate: rate, capacity: capacity, buckets: buckets, now: time.Now}, nil
}

// Allow consumes a token from the bucket belonging to key.
func (k *Keyed) Allow(key string) bool {
	bucket := k.buckets.GetOrCreate(key, func() *TokenBucket {
		return newTokenBucket(k.rate, k.capacity, k.now)
	})
	// Re-put to refresh the idle TTL.
	k.buckets.Put(key, bucket)
	return bucket.Allow()
}
